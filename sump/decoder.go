// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

import (
	"io"

	"golang.org/x/xerrors"
)

// Decoder rebuilds logical samples from the raw sample stream of a device.
//
// The wire format is one byte per enabled channel group (group 1 first).
// With run-length encoding, a word whose enabled-group bytes all carry
// the marker bit repeats the previous literal word; the 7-bit payloads,
// least significant group first, hold the number of extra repetitions.
// In demultiplex mode, a word holds two consecutive samples: groups 1/2
// then groups 3/4.
type Decoder struct {
	r io.Reader

	buf []byte
	err error

	grps []int  // enabled groups, in wire order
	mask uint32 // logical channel mask
	rle  bool
	ddr  bool
	rev  bool
	n    int // number of samples to decode
}

// NewDecoder creates a decoder reading the sample stream described by
// plan and flags from r.
func NewDecoder(r io.Reader, plan Plan, flags Flags) *Decoder {
	dec := &Decoder{
		r:    r,
		grps: flags.EnabledGroups(),
		mask: flags.ChannelMask(),
		rle:  plan.RLE,
		ddr:  plan.DDR,
		rev:  plan.Reverse,
		n:    plan.ReadCounter,
	}
	dec.buf = make([]byte, len(dec.grps))
	if dec.ddr {
		dec.mask &= 0xffff
	}
	return dec
}

// Decode reads the whole sample stream and returns the samples, oldest first.
// On error, no sample is returned.
func (dec *Decoder) Decode() ([]uint32, error) {
	if len(dec.grps) == 0 {
		return nil, &CorruptionError{Err: xerrors.Errorf("no enabled channel group")}
	}

	per := 1
	if dec.ddr {
		per = 2
	}
	var (
		nw    = (dec.n + per - 1) / per
		words = make([]uint32, 0, nw)
	)

	for len(words) < nw {
		dec.load()
		if dec.err != nil {
			return nil, dec.readErr(len(words), nw)
		}

		if !dec.rle {
			words = append(words, dec.value())
			continue
		}

		switch n := dec.markers(); n {
		case 0:
			words = append(words, dec.value())
		case len(dec.grps):
			if len(words) == 0 {
				return nil, &CorruptionError{
					Err: xerrors.Errorf("run-length word without preceding sample"),
				}
			}
			var (
				last = words[len(words)-1]
				rep  = dec.runLength()
			)
			// a final run may overshoot the read counter.
			for i := uint64(0); i < rep && len(words) < nw; i++ {
				words = append(words, last)
			}
		default:
			return nil, &CorruptionError{
				Err: xerrors.Errorf(
					"inconsistent run-length markers at word %d (got=% x)",
					len(words), dec.buf,
				),
			}
		}
	}

	if dec.rev {
		for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
			words[i], words[j] = words[j], words[i]
		}
	}

	out := make([]uint32, 0, dec.n)
	for _, w := range words {
		if !dec.ddr {
			out = append(out, w&dec.mask)
			continue
		}
		out = append(out, w&dec.mask, (w>>16)&dec.mask)
	}
	return out[:dec.n], nil
}

func (dec *Decoder) load() {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, dec.buf)
}

func (dec *Decoder) readErr(got, want int) error {
	if xerrors.Is(dec.err, io.EOF) || xerrors.Is(dec.err, io.ErrUnexpectedEOF) {
		return &CorruptionError{
			Err: xerrors.Errorf("short read after %d/%d words: %w", got, want, io.ErrUnexpectedEOF),
		}
	}
	return xerrors.Errorf("sump: could not read sample word %d/%d: %w", got, want, dec.err)
}

// value assembles the current word. Under RLE, the marker bit of every
// group byte is cleared.
func (dec *Decoder) value() uint32 {
	var v uint32
	for i, g := range dec.grps {
		b := dec.buf[i]
		if dec.rle {
			b &= rlePayload
		}
		v |= uint32(b) << (8 * uint(g))
	}
	return v
}

func (dec *Decoder) markers() int {
	n := 0
	for _, b := range dec.buf {
		if b&rleMarker != 0 {
			n++
		}
	}
	return n
}

func (dec *Decoder) runLength() uint64 {
	var n uint64
	for i, b := range dec.buf {
		n |= uint64(b&rlePayload) << (7 * uint(i))
	}
	return n
}
