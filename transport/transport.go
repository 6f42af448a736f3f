// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport provides sump.Channel implementations over serial
// ports, raw terminals and FTDI USB bridges.
package transport // import "github.com/lavachemist/ols/transport"

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/lavachemist/ols/internal/simdev"
	"github.com/lavachemist/ols/sump"
)

// Conn is a byte stream with a configurable read timeout.
// A Read that times out returns 0 bytes, with a nil error or io.EOF.
type Conn interface {
	io.ReadWriteCloser
	SetReadTimeout(d time.Duration) error
}

// Port is a sump.Channel over a Conn.
type Port struct {
	name string
	conn Conn
}

var _ sump.Channel = (*Port)(nil)

// Wrap returns a Port reading from and writing to conn.
func Wrap(name string, conn Conn) *Port {
	return &Port{name: name, conn: conn}
}

// Name returns the name of the underlying device.
func (p *Port) Name() string { return p.name }

func (p *Port) Write(data []byte) (int, error) {
	n, err := p.conn.Write(data)
	switch {
	case err != nil:
		return n, fmt.Errorf("transport: could not write to %q: %w", p.name, err)
	case n != len(data):
		return n, fmt.Errorf("transport: could not write to %q: %w", p.name, io.ErrShortWrite)
	}
	return n, nil
}

// ReadExactly fills data, waiting at most timeout.
func (p *Port) ReadExactly(data []byte, timeout time.Duration) (int, error) {
	var (
		n        = 0
		deadline = time.Now().Add(timeout)
	)
	for n < len(data) {
		left := time.Until(deadline)
		if left <= 0 {
			return n, fmt.Errorf(
				"transport: read %d/%d bytes from %q: %w",
				n, len(data), p.name, os.ErrDeadlineExceeded,
			)
		}

		err := p.conn.SetReadTimeout(left)
		if err != nil {
			return n, fmt.Errorf("transport: could not set read timeout of %q: %w", p.name, err)
		}

		m, err := p.conn.Read(data[n:])
		n += m
		switch {
		case err == nil, errors.Is(err, io.EOF):
			// no data before the read timeout.
		default:
			return n, fmt.Errorf("transport: could not read from %q: %w", p.name, err)
		}
	}
	return n, nil
}

func (p *Port) Close() error {
	err := p.conn.Close()
	if err != nil {
		return fmt.Errorf("transport: could not close %q: %w", p.name, err)
	}
	return nil
}

type opener func(name string, baud int) (sump.Channel, error)

var kinds = map[string]opener{
	"serial": func(name string, baud int) (sump.Channel, error) { return openSerial(name, baud) },
	"tty":    func(name string, baud int) (sump.Channel, error) { return openTTY(name, baud) },
	"ftdi":   func(name string, baud int) (sump.Channel, error) { return openFTDI(name, baud) },
	"sim": func(name string, baud int) (sump.Channel, error) {
		return simdev.New(), nil
	},
}

// Kinds returns the sorted list of transport kinds.
func Kinds() []string {
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Open opens the named device with the given transport kind:
//   - "serial": a serial port, through go.bug.st/serial,
//   - "tty": a raw terminal device, through github.com/pkg/term,
//   - "ftdi": an FTDI bridge named "vid:pid" (hex), through libftdi,
//   - "sim": a simulated device.
func Open(kind, name string, baud int) (sump.Channel, error) {
	open, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("transport: unknown transport kind %q", kind)
	}
	return open(name, baud)
}

// Dialer returns a function opening the named device, for sump.NewDriver.
func Dialer(kind, name string, baud int) func() (sump.Channel, error) {
	return func() (sump.Channel, error) {
		return Open(kind, name, baud)
	}
}
