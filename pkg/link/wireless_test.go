// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/hotlink/pkg/hotlink"
)

var (
	displayAddr = Address{0x24, 0x6F, 0x28, 0x00, 0x00, 0x01}
	bridgeAddr  = Address{0x24, 0x6F, 0x28, 0x00, 0x00, 0x02}
	otherAddr   = Address{0x24, 0x6F, 0x28, 0x00, 0x00, 0x03}
)

func newWirelessPair(t *testing.T, policy Policy) (*Air, *WirelessLink, *StubRadio) {
	t.Helper()
	air := NewAir(-42)
	local := air.NewRadio(bridgeAddr)
	remote := air.NewRadio(displayAddr)
	l := NewWireless(local, WirelessOptions{Policy: policy, QueueDepth: 2})
	require.NoError(t, l.Init())
	return air, l, remote
}

func TestWirelessLink_PollEmpty(t *testing.T) {
	_, l, _ := newWirelessPair(t, PolicyQueue)
	_, ok := l.Poll()
	assert.False(t, ok)
	_, ok = l.LastSender()
	assert.False(t, ok)
	assert.Equal(t, ChannelWireless, l.Channel())
}

func TestWirelessLink_ReceiveDatagram(t *testing.T) {
	_, l, remote := newWirelessPair(t, PolicyQueue)
	require.NoError(t, remote.Send(BroadcastAddress, []byte{byte(hotlink.KindHotkey), 0x01, 0x63}))

	msg, ok := l.Poll()
	require.True(t, ok)
	assert.Equal(t, hotlink.KindHotkey, msg.Kind)
	assert.Equal(t, []byte{0x01, 0x63}, msg.Payload)

	sender, ok := l.LastSender()
	require.True(t, ok)
	assert.Equal(t, displayAddr, sender)
	assert.Equal(t, -42, l.LastRSSI())
}

func TestWirelessLink_DiscardsBadDatagrams(t *testing.T) {
	_, l, _ := newWirelessPair(t, PolicyQueue)
	local := l.radio.(*StubRadio)
	local.Inject(displayAddr, 0, []byte{})
	local.Inject(displayAddr, 0, make([]byte, MaxDatagramSize+1))

	_, ok := l.Poll()
	assert.False(t, ok)
	assert.Equal(t, uint64(2), l.Discarded())

	local.Inject(displayAddr, 0, make([]byte, MaxDatagramSize))
	msg, ok := l.Poll()
	require.True(t, ok)
	assert.Len(t, msg.Payload, hotlink.MaxPayloadSize)
}

func TestWirelessLink_LatchKeepsNewest(t *testing.T) {
	_, l, remote := newWirelessPair(t, PolicyLatch)
	for i := 0; i < 3; i++ {
		require.NoError(t, remote.Send(BroadcastAddress, []byte{byte(hotlink.KindMediaKey), byte(i), 0x00}))
	}

	msg, ok := l.Poll()
	require.True(t, ok)
	assert.Equal(t, byte(2), msg.Payload[0])
	_, ok = l.Poll()
	assert.False(t, ok)
	assert.Equal(t, uint64(2), l.Overwritten())
	assert.Equal(t, uint64(0), l.Dropped())
}

func TestWirelessLink_QueueDropsNewestWhenFull(t *testing.T) {
	_, l, remote := newWirelessPair(t, PolicyQueue)
	for i := 0; i < 4; i++ {
		require.NoError(t, remote.Send(BroadcastAddress, []byte{byte(hotlink.KindMediaKey), byte(i), 0x00}))
	}

	msgs := pollAll(l, 10)
	require.Len(t, msgs, 2)
	assert.Equal(t, byte(0), msgs[0].Payload[0])
	assert.Equal(t, byte(1), msgs[1].Payload[0])
	assert.Equal(t, uint64(2), l.Dropped())
}

func TestWirelessLink_SendBroadcasts(t *testing.T) {
	air, l, _ := newWirelessPair(t, PolicyQueue)
	third := air.NewRadio(otherAddr)
	var heard []Address
	require.NoError(t, third.Start(func(from Address, rssi int, data []byte) {
		heard = append(heard, from)
	}))

	assert.True(t, l.Send(hotlink.KindStats, []byte{0xA0}))
	local := l.radio.(*StubRadio)
	sent := local.Sent()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].To.IsBroadcast())
	assert.Equal(t, []byte{byte(hotlink.KindStats), 0xA0}, sent[0].Data)
	assert.Equal(t, []Address{bridgeAddr}, heard)
}

func TestWirelessLink_ReplyWithoutSenderBroadcasts(t *testing.T) {
	_, l, _ := newWirelessPair(t, PolicyQueue)
	assert.True(t, l.Reply(hotlink.KindPing, nil))

	sent := l.radio.(*StubRadio).Sent()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].To.IsBroadcast())
}

func TestWirelessLink_ReplyUnicastsToLastSender(t *testing.T) {
	air, l, remote := newWirelessPair(t, PolicyQueue)
	third := air.NewRadio(otherAddr)

	require.NoError(t, remote.Send(BroadcastAddress, []byte{byte(hotlink.KindHotkey), 0x00, 0x04}))
	_, ok := l.Poll()
	require.True(t, ok)

	var remoteGot, thirdGot int
	require.NoError(t, remote.Start(func(Address, int, []byte) { remoteGot++ }))
	require.NoError(t, third.Start(func(Address, int, []byte) { thirdGot++ }))

	local := l.radio.(*StubRadio)
	assert.False(t, local.HasPeer(displayAddr))
	assert.True(t, l.Reply(hotlink.KindHotkeyAck, hotlink.HotkeyAck{Status: hotlink.AckOK}.Marshal()))
	assert.True(t, local.HasPeer(displayAddr))

	sent := local.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, displayAddr, sent[0].To)
	assert.Equal(t, 1, remoteGot)
	assert.Equal(t, 0, thirdGot)
}

func TestWirelessLink_SenderUpdatesOnPoll(t *testing.T) {
	air, l, remote := newWirelessPair(t, PolicyQueue)
	third := air.NewRadio(otherAddr)

	require.NoError(t, remote.Send(BroadcastAddress, []byte{byte(hotlink.KindPing)}))
	require.NoError(t, third.Send(BroadcastAddress, []byte{byte(hotlink.KindPing)}))

	_, ok := l.Poll()
	require.True(t, ok)
	sender, _ := l.LastSender()
	assert.Equal(t, displayAddr, sender)

	_, ok = l.Poll()
	require.True(t, ok)
	sender, _ = l.LastSender()
	assert.Equal(t, otherAddr, sender)
}

func TestWirelessLink_OversizeSendRefused(t *testing.T) {
	_, l, _ := newWirelessPair(t, PolicyQueue)
	assert.False(t, l.Send(hotlink.KindStats, make([]byte, hotlink.MaxPayloadSize+1)))
	assert.True(t, l.Send(hotlink.KindStats, make([]byte, hotlink.MaxPayloadSize)))
}

func TestBroadcastHelper(t *testing.T) {
	_, l, _ := newWirelessPair(t, PolicyQueue)
	assert.True(t, Broadcast(l, hotlink.KindConfigMode, nil))

	port := newPipePort()
	w := NewWired(port, WiredOptions{})
	assert.True(t, Broadcast(w, hotlink.KindConfigMode, nil))
	assert.Equal(t, hotlink.MustEncodeFrame(hotlink.KindConfigMode, nil), port.Written())
}
