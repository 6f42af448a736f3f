// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
)

const (
	onlyGroup1 = FlagGroup2Disabled | FlagGroup3Disabled | FlagGroup4Disabled
	onlyGroup2 = FlagGroup1Disabled | FlagGroup3Disabled | FlagGroup4Disabled
)

func TestDecoder(t *testing.T) {
	for _, tc := range []struct {
		name  string
		plan  Plan
		flags Flags
		raw   []byte
		want  []uint32
	}{
		{
			name: "all-groups",
			plan: Plan{ReadCounter: 2},
			raw: []byte{
				0x01, 0x02, 0x03, 0x04,
				0x05, 0x06, 0x07, 0x08,
			},
			want: []uint32{0x04030201, 0x08070605},
		},
		{
			name:  "groups-1-3",
			plan:  Plan{ReadCounter: 2},
			flags: FlagGroup2Disabled | FlagGroup4Disabled,
			raw:   []byte{0x11, 0x33, 0x01, 0x03},
			want:  []uint32{0x00330011, 0x00030001},
		},
		{
			name:  "group-2",
			plan:  Plan{ReadCounter: 3},
			flags: onlyGroup2,
			raw:   []byte{0xff, 0x80, 0x01},
			want:  []uint32{0xff00, 0x8000, 0x0100},
		},
		{
			name:  "reverse",
			plan:  Plan{ReadCounter: 4, Reverse: true},
			flags: onlyGroup1,
			raw:   []byte{4, 3, 2, 1},
			want:  []uint32{1, 2, 3, 4},
		},
		{
			name:  "rle-run",
			plan:  Plan{ReadCounter: 4, RLE: true},
			flags: onlyGroup1,
			raw:   []byte{0x05, 0x83},
			want:  []uint32{5, 5, 5, 5},
		},
		{
			name:  "rle-literals",
			plan:  Plan{ReadCounter: 4, RLE: true},
			flags: onlyGroup1,
			raw:   []byte{0x05, 0x81, 0x7f, 0x00},
			want:  []uint32{5, 5, 0x7f, 0},
		},
		{
			name:  "rle-zero-run",
			plan:  Plan{ReadCounter: 2, RLE: true},
			flags: onlyGroup1,
			raw:   []byte{0x05, 0x80, 0x06},
			want:  []uint32{5, 6},
		},
		{
			name:  "rle-overshoot",
			plan:  Plan{ReadCounter: 4, RLE: true},
			flags: onlyGroup1,
			raw:   []byte{0x05, 0x8a},
			want:  []uint32{5, 5, 5, 5},
		},
		{
			name:  "rle-two-groups",
			plan:  Plan{ReadCounter: 131, RLE: true, Reverse: true},
			flags: FlagGroup3Disabled | FlagGroup4Disabled,
			raw: []byte{
				0x01, 0x02,
				0x81, 0x81, // 1 + 1<<7
				0x7f, 0x7f,
			},
			want: func() []uint32 {
				o := []uint32{0x7f7f}
				for i := 0; i < 130; i++ {
					o = append(o, 0x0201)
				}
				return o
			}(),
		},
		{
			name: "rle-literal-all-groups",
			plan: Plan{ReadCounter: 1, RLE: true},
			raw:  []byte{0x7f, 0x00, 0x7f, 0x7f},
			want: []uint32{0x7f7f007f},
		},
		{
			name: "ddr",
			plan: Plan{ReadCounter: 4, DDR: true},
			raw: []byte{
				0x01, 0x02, 0x03, 0x04,
				0x05, 0x06, 0x07, 0x08,
			},
			want: []uint32{0x0201, 0x0403, 0x0605, 0x0807},
		},
		{
			name:  "ddr-reverse-rle",
			plan:  Plan{ReadCounter: 6, DDR: true, RLE: true, Reverse: true},
			flags: FlagGroup1Disabled | FlagGroup3Disabled,
			raw: []byte{
				0x01, 0x02,
				0x81, 0x80,
				0x03, 0x04,
			},
			want: []uint32{0x0300, 0x0400, 0x0100, 0x0200, 0x0100, 0x0200},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dec := NewDecoder(bytes.NewReader(tc.raw), tc.plan, tc.flags)
			got, err := dec.Decode()
			if err != nil {
				t.Fatalf("could not decode stream: %+v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid samples:\ngot= %x\nwant=%x", got, tc.want)
			}
		})
	}
}

type errReader struct {
	err error
}

func (r errReader) Read(p []byte) (int, error) { return 0, r.err }

func TestDecoderErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		plan    Plan
		flags   Flags
		r       io.Reader
		corrupt bool
		want    string
	}{
		{
			name:    "no-data",
			plan:    Plan{ReadCounter: 4},
			flags:   onlyGroup1,
			r:       bytes.NewReader(nil),
			corrupt: true,
			want:    "sump: corrupted sample stream: short read after 0/4 words: unexpected EOF",
		},
		{
			name:    "short-read",
			plan:    Plan{ReadCounter: 4},
			flags:   onlyGroup1,
			r:       bytes.NewReader([]byte{1, 2}),
			corrupt: true,
			want:    "sump: corrupted sample stream: short read after 2/4 words: unexpected EOF",
		},
		{
			name:    "partial-word",
			plan:    Plan{ReadCounter: 2},
			r:       bytes.NewReader([]byte{1, 2, 3, 4, 5}),
			corrupt: true,
			want:    "sump: corrupted sample stream: short read after 1/2 words: unexpected EOF",
		},
		{
			name:    "rle-unterminated",
			plan:    Plan{ReadCounter: 8, RLE: true},
			flags:   onlyGroup1,
			r:       bytes.NewReader([]byte{0x01, 0x82}),
			corrupt: true,
			want:    "sump: corrupted sample stream: short read after 3/8 words: unexpected EOF",
		},
		{
			name:    "rle-first-word",
			plan:    Plan{ReadCounter: 4, RLE: true},
			flags:   onlyGroup1,
			r:       bytes.NewReader([]byte{0x82, 0x01}),
			corrupt: true,
			want:    "sump: corrupted sample stream: run-length word without preceding sample",
		},
		{
			name:    "rle-mixed-markers",
			plan:    Plan{ReadCounter: 4, RLE: true},
			flags:   FlagGroup3Disabled | FlagGroup4Disabled,
			r:       bytes.NewReader([]byte{0x01, 0x02, 0x81, 0x02}),
			corrupt: true,
			want:    "sump: corrupted sample stream: inconsistent run-length markers at word 1 (got=81 02)",
		},
		{
			name:    "no-group",
			plan:    Plan{ReadCounter: 4},
			flags:   flagGroups,
			r:       bytes.NewReader([]byte{1, 2, 3, 4}),
			corrupt: true,
			want:    "sump: corrupted sample stream: no enabled channel group",
		},
		{
			name:  "read-error",
			plan:  Plan{ReadCounter: 4},
			flags: onlyGroup1,
			r:     errReader{errors.New("boom")},
			want:  "sump: could not read sample word 0/4: boom",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewDecoder(tc.r, tc.plan, tc.flags).Decode()
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got != nil {
				t.Fatalf("partial result returned: %x", got)
			}
			if got, want := err.Error(), tc.want; got != want {
				t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, want)
			}
			var cerr *CorruptionError
			if got, want := errors.As(err, &cerr), tc.corrupt; got != want {
				t.Fatalf("invalid error type: got=%v, want=%v", got, want)
			}
		})
	}
}
