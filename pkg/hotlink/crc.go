// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hotlink

// CalculateCRC computes the CRC-8/SMBUS checksum for the given data
func CalculateCRC(data []byte) uint8 {
	crc := uint8(crcInitial)
	for _, b := range data {
		crc = crcStep(crc, b)
	}
	return crc
}

func crcStep(crc uint8, b byte) uint8 {
	crc ^= b
	for i := 0; i < 8; i++ {
		if crc&0x80 != 0 {
			crc = (crc << 1) ^ crcPolynomial
		} else {
			crc <<= 1
		}
	}
	return crc
}

// frameCRC computes the checksum over LEN ‖ TYPE ‖ PAYLOAD without building
// an intermediate buffer.
func frameCRC(length uint8, kind Kind, payload []byte) uint8 {
	crc := crcStep(crcInitial, length)
	crc = crcStep(crc, byte(kind))
	for _, b := range payload {
		crc = crcStep(crc, b)
	}
	return crc
}
