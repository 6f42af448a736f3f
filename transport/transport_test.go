// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/lavachemist/ols/internal/simdev"
	"go.bug.st/serial"
)

type chunk struct {
	p []byte
	e error
}

// fakeConn replays scripted reads and records writes.
type fakeConn struct {
	rs []chunk
	w  []byte
	we error

	timeouts []time.Duration
	closed   int
	flushed  int
	flushErr error
}

func (c *fakeConn) Read(p []byte) (int, error) {
	if len(c.rs) == 0 {
		return 0, nil
	}
	r := c.rs[0]
	c.rs = c.rs[1:]
	n := copy(p, r.p)
	if n < len(r.p) {
		c.rs = append([]chunk{{p: r.p[n:]}}, c.rs...)
	}
	return n, r.e
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.we != nil {
		return 0, c.we
	}
	c.w = append(c.w, p...)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

func (c *fakeConn) SetReadTimeout(d time.Duration) error {
	c.timeouts = append(c.timeouts, d)
	return nil
}

func (c *fakeConn) ResetInputBuffer() error { return c.flushErr }
func (c *fakeConn) Flush() error {
	c.flushed++
	return c.flushErr
}

func TestPortReadExactly(t *testing.T) {
	boom := errors.New("boom")
	for _, tc := range []struct {
		name    string
		rs      []chunk
		n       int
		timeout time.Duration
		want    []byte
		err     error
	}{
		{
			name:    "one-chunk",
			rs:      []chunk{{p: []byte{1, 2, 3, 4}}},
			n:       4,
			timeout: time.Second,
			want:    []byte{1, 2, 3, 4},
		},
		{
			name: "many-chunks",
			rs: []chunk{
				{p: []byte{1}},
				{},
				{p: []byte{2, 3}, e: io.EOF},
				{p: []byte{4, 5}},
			},
			n:       4,
			timeout: time.Second,
			want:    []byte{1, 2, 3, 4},
		},
		{
			name:    "timeout",
			rs:      []chunk{{p: []byte{1}}},
			n:       4,
			timeout: 5 * time.Millisecond,
			want:    []byte{1},
			err:     fmt.Errorf("transport: read 1/4 bytes from %q: %w", "fake", os.ErrDeadlineExceeded),
		},
		{
			name:    "read-error",
			rs:      []chunk{{p: []byte{1}}, {e: boom}},
			n:       4,
			timeout: time.Second,
			want:    []byte{1},
			err:     fmt.Errorf("transport: could not read from %q: %w", "fake", boom),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			conn := &fakeConn{rs: tc.rs}
			port := Wrap("fake", conn)

			p := make([]byte, tc.n)
			n, err := port.ReadExactly(p, tc.timeout)
			switch {
			case err == nil && tc.err == nil:
			case err != nil && tc.err != nil:
				if got, want := err.Error(), tc.err.Error(); got != want {
					t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
				}
			default:
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.err)
			}
			if got, want := p[:n], tc.want; !reflect.DeepEqual(got, want) {
				t.Fatalf("invalid data: got=%v, want=%v", got, want)
			}
			if len(conn.timeouts) == 0 {
				t.Fatalf("read timeout never set")
			}
			for _, d := range conn.timeouts {
				if d <= 0 || d > tc.timeout {
					t.Fatalf("invalid read timeout %v", d)
				}
			}
		})
	}

	t.Run("deadline-exceeded", func(t *testing.T) {
		port := Wrap("fake", &fakeConn{})
		_, err := port.ReadExactly(make([]byte, 1), time.Millisecond)
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			t.Fatalf("invalid error: %+v", err)
		}
	})
}

func TestPortWrite(t *testing.T) {
	conn := &fakeConn{}
	port := Wrap("fake", conn)

	n, err := port.Write([]byte{1, 2, 3})
	if err != nil || n != 3 {
		t.Fatalf("could not write: n=%d, err=%+v", n, err)
	}
	if got, want := conn.w, []byte{1, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid write: got=%v, want=%v", got, want)
	}

	conn.we = io.ErrClosedPipe
	_, err = port.Write([]byte{1})
	if got, want := err.Error(), `transport: could not write to "fake": io: read/write on closed pipe`; got != want {
		t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, want)
	}

	err = port.Close()
	if err != nil {
		t.Fatalf("could not close port: %+v", err)
	}
	if conn.closed != 1 {
		t.Fatalf("port closed %d times", conn.closed)
	}
}

func TestOpen(t *testing.T) {
	defer func() {
		serialOpen = serialOpenImpl
		ttyOpen = ttyOpenImpl
	}()

	var (
		conn = &fakeConn{}
		mode *serial.Mode
	)
	serialOpen = func(name string, m *serial.Mode) (serialPort, error) {
		mode = m
		return conn, nil
	}
	ttyOpen = func(name string, baud int) (ttyPort, error) {
		return conn, nil
	}

	ch, err := Open("serial", "/dev/ttyACM0", 115200)
	if err != nil {
		t.Fatalf("could not open serial port: %+v", err)
	}
	if got, want := ch.(*Port).Name(), "/dev/ttyACM0"; got != want {
		t.Fatalf("invalid port name: got=%q, want=%q", got, want)
	}
	if mode.BaudRate != 115200 || mode.DataBits != 8 {
		t.Fatalf("invalid serial mode: %+v", mode)
	}

	_, err = Open("tty", "/dev/ttyUSB0", 115200)
	if err != nil {
		t.Fatalf("could not open tty: %+v", err)
	}
	if conn.flushed != 1 {
		t.Fatalf("tty not flushed")
	}

	ch, err = Open("sim", "", 0)
	if err != nil {
		t.Fatalf("could not open simulated device: %+v", err)
	}
	if _, ok := ch.(*simdev.Device); !ok {
		t.Fatalf("invalid simulated channel type %T", ch)
	}

	_, err = Open("usb", "x", 0)
	if got, want := err.Error(), `transport: unknown transport kind "usb"`; got != want {
		t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, want)
	}

	if got, want := Kinds(), []string{"ftdi", "serial", "sim", "tty"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid kinds: got=%v, want=%v", got, want)
	}
}

func TestOpenErrors(t *testing.T) {
	defer func() {
		serialOpen = serialOpenImpl
		ttyOpen = ttyOpenImpl
	}()

	boom := errors.New("boom")
	conn := &fakeConn{flushErr: boom}
	serialOpen = func(name string, m *serial.Mode) (serialPort, error) {
		if name == "missing" {
			return nil, boom
		}
		return conn, nil
	}
	ttyOpen = func(name string, baud int) (ttyPort, error) {
		if name == "missing" {
			return nil, boom
		}
		return conn, nil
	}

	for _, tc := range []struct {
		kind string
		name string
		want string
	}{
		{"serial", "missing", `transport: could not open serial port "missing" (baud=9600): boom`},
		{"serial", "/dev/x", `transport: could not reset input buffer of "/dev/x": boom`},
		{"tty", "missing", `transport: could not open tty "missing" (baud=9600): boom`},
		{"tty", "/dev/x", `transport: could not flush tty "/dev/x": boom`},
		{"ftdi", "nope", `transport: invalid FTDI device name "nope" (want vid:pid): expected integer`},
	} {
		t.Run(tc.kind+"-"+tc.name, func(t *testing.T) {
			dial := Dialer(tc.kind, tc.name, 9600)
			_, err := dial()
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; got != want {
				t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, want)
			}
		})
	}
	if conn.closed != 2 {
		t.Fatalf("failed ports closed %d times (want 2)", conn.closed)
	}
}
