// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package simdev provides a simulated SUMP logic analyzer.
//
// A Device decodes the command stream it is sent, records the state of
// its registers and answers the identify, metadata and arm commands
// with deterministic data.
package simdev // import "github.com/lavachemist/ols/internal/simdev"

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	opReset      = 0x00
	opRun        = 0x01
	opID         = 0x02
	opMetadata   = 0x04
	opDivider    = 0x80
	opCounts     = 0x81
	opFlags      = 0x82
	opDelayCount = 0x83
	opReadCount  = 0x84
	opTrigger    = 0xc0

	flagDemux    = 0x001
	flagGroups   = 0x03c
	flagRLE      = 0x100
	flagGrpShift = 2

	step = 4
)

// Record is the register state of a Device.
type Record struct {
	Resets   int    // number of reset commands
	Ops      []byte // opcodes, in reception order
	Divider  uint32
	Flags    uint32
	Counts   uint32 // packed read/delay counters
	Delay    uint32 // large-count delay counter
	Read     uint32 // large-count read counter
	Large    bool   // counters were sent with the large-count commands
	Triggers [4]Trigger
	Armed    int
	Closed   int
}

// Trigger holds the registers of a trigger stage.
type Trigger struct {
	Mask   uint32
	Value  uint32
	Config uint32
}

// Device is a simulated device. It implements the sump.Channel interface.
type Device struct {
	ID       string   // identifier sent back on ID requests
	Meta     []byte   // metadata block sent back on metadata requests
	Pattern  uint32   // constant sample value, used when Samples is empty
	Samples  []uint32 // scripted samples, oldest first
	ArmDelay time.Duration

	Hang       bool          // never emit samples once armed
	Raw        []byte        // sample stream sent verbatim when armed
	Truncate   int           // when positive, the sample stream is cut to Truncate bytes, then EOF
	WriteDelay time.Duration // delay of each Write
	WriteErr   error
	ReadErr    error

	mu    sync.Mutex
	in    []byte // unparsed command bytes
	out   []byte // pending reply bytes
	rec   Record
	ready time.Time // time at which out becomes readable
	eof   bool
}

// New returns a device answering "1ALS" and emitting a constant
// all-ones pattern.
func New() *Device {
	return &Device{
		ID:      "1ALS",
		Pattern: 0xffffffff,
		Meta:    DefaultMetadata(),
	}
}

// DefaultMetadata returns the metadata block of a 24 KiB-sample
// Logic Sniffer.
func DefaultMetadata() []byte {
	var p []byte
	str := func(key byte, v string) {
		p = append(p, key)
		p = append(p, v...)
		p = append(p, 0)
	}
	u32 := func(key byte, v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		p = append(p, key)
		p = append(p, b[:]...)
	}
	str(0x01, "Simulated Logic Sniffer")
	str(0x02, "3.07")
	u32(0x20, 32)
	u32(0x21, 4*24*1024)
	u32(0x23, 200_000_000)
	p = append(p, 0x41, 2)
	p = append(p, 0)
	return p
}

// Record returns a copy of the device registers.
func (dev *Device) Record() Record {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	rec := dev.rec
	rec.Ops = append([]byte(nil), dev.rec.Ops...)
	return rec
}

func (dev *Device) Write(p []byte) (int, error) {
	if dev.WriteDelay > 0 {
		time.Sleep(dev.WriteDelay)
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.rec.Closed > 0 {
		return 0, os.ErrClosed
	}
	if dev.WriteErr != nil {
		return 0, dev.WriteErr
	}

	dev.in = append(dev.in, p...)
	for len(dev.in) > 0 {
		op := dev.in[0]
		if op&0x80 == 0 {
			dev.in = dev.in[1:]
			dev.short(op)
			continue
		}
		if len(dev.in) < 5 {
			break
		}
		v := binary.LittleEndian.Uint32(dev.in[1:5])
		dev.in = dev.in[5:]
		dev.long(op, v)
	}
	return len(p), nil
}

func (dev *Device) short(op byte) {
	dev.rec.Ops = append(dev.rec.Ops, op)
	switch op {
	case opReset:
		dev.rec.Resets++
		dev.out = dev.out[:0]
		dev.eof = false
	case opRun:
		dev.rec.Armed++
		dev.arm()
	case opID:
		dev.out = append(dev.out, dev.ID...)
		dev.ready = time.Now()
	case opMetadata:
		dev.out = append(dev.out, dev.Meta...)
		dev.ready = time.Now()
	}
}

func (dev *Device) long(op byte, v uint32) {
	dev.rec.Ops = append(dev.rec.Ops, op)
	switch {
	case op == opDivider:
		dev.rec.Divider = v
	case op == opCounts:
		dev.rec.Counts = v
		dev.rec.Large = false
	case op == opFlags:
		dev.rec.Flags = v
	case op == opDelayCount:
		dev.rec.Delay = v
		dev.rec.Large = true
	case op == opReadCount:
		dev.rec.Read = v
		dev.rec.Large = true
	case op >= opTrigger && op < opTrigger+16:
		var (
			i  = int(op-opTrigger) / 4
			st = &dev.rec.Triggers[i]
		)
		switch (op - opTrigger) % 4 {
		case 0:
			st.Mask = v
		case 1:
			st.Value = v
		case 2:
			st.Config = v
		}
	}
}

// arm prepares the sample stream the device sends once triggered.
func (dev *Device) arm() {
	dev.ready = time.Now().Add(dev.ArmDelay)
	if dev.Hang {
		return
	}

	out := dev.Raw
	if out == nil {
		out = dev.stream()
	}
	if dev.Truncate > 0 && dev.Truncate < len(out) {
		out = out[:dev.Truncate]
		dev.eof = true
	}
	dev.out = append(dev.out[:0], out...)
}

// nsamples returns the number of samples requested by the read counter.
func (dev *Device) nsamples() int {
	unit := step
	if dev.rec.Flags&flagDemux != 0 {
		unit *= 2
	}
	if dev.rec.Large {
		return int(dev.rec.Read+1) * unit
	}
	return int(dev.rec.Counts&0xffff+1) * unit
}

func (dev *Device) sample(i int) uint32 {
	if len(dev.Samples) == 0 {
		return dev.Pattern
	}
	return dev.Samples[i%len(dev.Samples)]
}

// stream encodes the samples newest first, with the configured group
// masking, demultiplexing and run-length encoding.
func (dev *Device) stream() []byte {
	var (
		flags = dev.rec.Flags
		ddr   = flags&flagDemux != 0
		rle   = flags&flagRLE != 0
		n     = dev.nsamples()
		grps  []int
	)
	for i := 0; i < 4; i++ {
		if (flags>>(flagGrpShift+i))&1 == 0 {
			grps = append(grps, i)
		}
	}
	if len(grps) == 0 {
		return nil
	}

	var words []uint32
	if ddr {
		for i := 0; i+1 < n; i += 2 {
			lo := dev.sample(i) & 0xffff
			hi := dev.sample(i+1) & 0xffff
			words = append(words, lo|hi<<16)
		}
	} else {
		for i := 0; i < n; i++ {
			words = append(words, dev.sample(i))
		}
	}

	encode := func(w uint32) []byte {
		p := make([]byte, len(grps))
		for i, g := range grps {
			b := byte(w >> (8 * uint(g)))
			if rle {
				b &= 0x7f
			}
			p[i] = b
		}
		return p
	}

	// newest first.
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}

	var out []byte
	if !rle {
		for _, w := range words {
			out = append(out, encode(w)...)
		}
		return out
	}

	maxRun := uint64(1)<<(7*uint(len(grps))) - 1
	for i := 0; i < len(words); {
		cur := encode(words[i])
		out = append(out, cur...)
		j := i + 1
		for j < len(words) && string(encode(words[j])) == string(cur) {
			j++
		}
		rep := uint64(j - i - 1)
		for rep > 0 {
			n := rep
			if n > maxRun {
				n = maxRun
			}
			for k := range grps {
				out = append(out, 0x80|byte(n>>(7*uint(k)))&0x7f)
			}
			rep -= n
		}
		i = j
	}
	return out
}

// ReadExactly implements the sump.Channel interface.
func (dev *Device) ReadExactly(p []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	n := 0
	for {
		dev.mu.Lock()
		switch {
		case dev.rec.Closed > 0:
			dev.mu.Unlock()
			return n, os.ErrClosed
		case dev.ReadErr != nil:
			dev.mu.Unlock()
			return n, dev.ReadErr
		}
		if len(dev.out) > 0 && !time.Now().Before(dev.ready) {
			c := copy(p[n:], dev.out)
			dev.out = dev.out[c:]
			n += c
		}
		eof := dev.eof && len(dev.out) == 0
		dev.mu.Unlock()

		switch {
		case n == len(p):
			return n, nil
		case eof:
			return n, io.EOF
		}

		left := time.Until(deadline)
		if left <= 0 {
			return n, fmt.Errorf("simdev: read timeout after %v: %w", timeout, os.ErrDeadlineExceeded)
		}
		if left > time.Millisecond {
			left = time.Millisecond
		}
		time.Sleep(left)
	}
}

// Close implements the sump.Channel interface.
func (dev *Device) Close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.rec.Closed++
	return nil
}
