// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"

	"github.com/pkg/term"
)

type ttyPort interface {
	Conn
	Flush() error
}

var (
	ttyOpen = ttyOpenImpl
)

func ttyOpenImpl(name string, baud int) (ttyPort, error) {
	return term.Open(name, term.Speed(baud), term.RawMode)
}

func openTTY(name string, baud int) (*Port, error) {
	tty, err := ttyOpen(name, baud)
	if err != nil {
		return nil, fmt.Errorf("transport: could not open tty %q (baud=%d): %w", name, baud, err)
	}

	// discard stale bytes from a previous session.
	err = tty.Flush()
	if err != nil {
		_ = tty.Close()
		return nil, fmt.Errorf("transport: could not flush tty %q: %w", name, err)
	}

	return Wrap(name, tty), nil
}
