// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !unix

package link

import "syscall"

func reuseControl(network, address string, c syscall.RawConn) error {
	return nil
}
