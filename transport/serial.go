// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"

	"go.bug.st/serial"
)

type serialPort interface {
	Conn
	ResetInputBuffer() error
}

var (
	serialOpen = serialOpenImpl
)

func serialOpenImpl(name string, mode *serial.Mode) (serialPort, error) {
	return serial.Open(name, mode)
}

func openSerial(name string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serialOpen(name, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: could not open serial port %q (baud=%d): %w", name, baud, err)
	}

	err = sp.ResetInputBuffer()
	if err != nil {
		_ = sp.Close()
		return nil, fmt.Errorf("transport: could not reset input buffer of %q: %w", name, err)
	}

	return Wrap(name, sp), nil
}
