// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"io"
	"time"

	"github.com/ziutek/ftdi"
)

const (
	ftdiVendor  = 0x0403
	ftdiProduct = 0x6001
	ftdiPoll    = time.Millisecond
)

type ftdiDevice interface {
	Reset() error

	SetBitmode(iomask byte, mode ftdi.Mode) error
	SetFlowControl(flowctrl ftdi.FlowCtrl) error
	SetLatencyTimer(lt int) error
	SetWriteChunkSize(cs int) error
	SetReadChunkSize(cs int) error
	SetBaudrate(br int) error
	PurgeBuffers() error

	io.Writer
	io.Reader
	io.Closer
}

var (
	ftdiOpen = ftdiOpenImpl
)

func ftdiOpenImpl(vid, pid uint16) (ftdiDevice, error) {
	dev, err := ftdi.OpenFirst(int(vid), int(pid), ftdi.ChannelAny)
	return dev, err
}

// parseFTDI parses a "vid:pid" device name.
func parseFTDI(name string) (vid, pid uint16, err error) {
	if name == "" {
		return ftdiVendor, ftdiProduct, nil
	}
	_, err = fmt.Sscanf(name, "%x:%x", &vid, &pid)
	if err != nil {
		return 0, 0, fmt.Errorf("transport: invalid FTDI device name %q (want vid:pid): %w", name, err)
	}
	return vid, pid, nil
}

func openFTDI(name string, baud int) (*Port, error) {
	vid, pid, err := parseFTDI(name)
	if err != nil {
		return nil, err
	}

	ft, err := ftdiOpen(vid, pid)
	if err != nil {
		return nil, fmt.Errorf("transport: could not open FTDI device (vid=0x%x, pid=0x%x): %w", vid, pid, err)
	}

	dev := &ftdiPort{ft: ft}
	err = dev.init(baud)
	if err != nil {
		ft.Close()
		return nil, fmt.Errorf("transport: could not initialize FTDI device (vid=0x%x, pid=0x%x): %w", vid, pid, err)
	}

	return Wrap(fmt.Sprintf("ftdi-%04x:%04x", vid, pid), dev), nil
}

// ftdiPort is a Conn over an FTDI device.
// libftdi reads do not block: a read returning no data is polled until
// the read timeout expires.
type ftdiPort struct {
	ft      ftdiDevice
	timeout time.Duration
}

func (dev *ftdiPort) init(baud int) error {
	var err error

	err = dev.ft.Reset()
	if err != nil {
		return fmt.Errorf("could not reset USB: %w", err)
	}

	err = dev.ft.SetBitmode(0, ftdi.ModeReset)
	if err != nil {
		return fmt.Errorf("could not reset bit mode: %w", err)
	}

	err = dev.ft.SetBaudrate(baud)
	if err != nil {
		return fmt.Errorf("could not set baud rate to %d: %w", baud, err)
	}

	err = dev.ft.SetFlowControl(ftdi.FlowCtrlDisable)
	if err != nil {
		return fmt.Errorf("could not disable flow control: %w", err)
	}

	err = dev.ft.SetLatencyTimer(2)
	if err != nil {
		return fmt.Errorf("could not set latency timer to 2: %w", err)
	}

	err = dev.ft.SetWriteChunkSize(0xffff)
	if err != nil {
		return fmt.Errorf("could not set write chunk-size to 0xffff: %w", err)
	}

	err = dev.ft.SetReadChunkSize(0xffff)
	if err != nil {
		return fmt.Errorf("could not set read chunk-size to 0xffff: %w", err)
	}

	err = dev.ft.PurgeBuffers()
	if err != nil {
		return fmt.Errorf("could not purge USB buffers: %w", err)
	}

	return nil
}

func (dev *ftdiPort) SetReadTimeout(d time.Duration) error {
	dev.timeout = d
	return nil
}

func (dev *ftdiPort) Read(p []byte) (int, error) {
	deadline := time.Now().Add(dev.timeout)
	for {
		n, err := dev.ft.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
		left := time.Until(deadline)
		if left <= 0 {
			return 0, nil
		}
		if left > ftdiPoll {
			left = ftdiPoll
		}
		time.Sleep(left)
	}
}

func (dev *ftdiPort) Write(p []byte) (int, error) {
	return dev.ft.Write(p)
}

func (dev *ftdiPort) Close() error {
	return dev.ft.Close()
}
