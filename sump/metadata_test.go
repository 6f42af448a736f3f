// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/lavachemist/ols/internal/simdev"
)

func TestParseMetadata(t *testing.T) {
	md, err := parseMetadata(bytes.NewReader(simdev.DefaultMetadata()))
	if err != nil {
		t.Fatalf("could not parse metadata: %+v", err)
	}
	want := Metadata{
		Name:          "Simulated Logic Sniffer",
		FPGAVersion:   "3.07",
		Probes:        32,
		SampleMemory:  4 * 24 * 1024,
		MaxSampleRate: 200_000_000,
		Protocol:      2,
	}
	if md != want {
		t.Fatalf("invalid metadata:\ngot= %+v\nwant=%+v", md, want)
	}

	prof := md.Profile()
	if got, want := prof.Name, "Simulated Logic Sniffer"; got != want {
		t.Fatalf("invalid profile name: got=%q, want=%q", got, want)
	}
	if got, want := prof.ClockSpeed, uint32(100_000_000); got != want {
		t.Fatalf("invalid clock speed: got=%d, want=%d", got, want)
	}
	if got, want := prof.SampleMemory, 24*1024; got != want {
		t.Fatalf("invalid sample memory: got=%d, want=%d", got, want)
	}
	if got, want := prof.Firmware, FirmwareSUMP; got != want {
		t.Fatalf("invalid firmware: got=%q, want=%q", got, want)
	}
	if _, err := prof.caps(); err != nil {
		t.Fatalf("invalid derived profile: %+v", err)
	}
}

func TestMetadataProfileLarge(t *testing.T) {
	md := Metadata{
		Name:          "Pipistrello",
		SampleMemory:  64 * 1024 * 1024,
		MaxSampleRate: 50_000_000,
	}
	prof := md.Profile()
	if got, want := prof.Firmware, FirmwareLarge; got != want {
		t.Fatalf("invalid firmware: got=%q, want=%q", got, want)
	}
	if got, want := prof.ClockSpeed, uint32(50_000_000); got != want {
		t.Fatalf("invalid clock speed: got=%d, want=%d", got, want)
	}
	if got, want := prof.SampleMemory, 16*1024*1024; got != want {
		t.Fatalf("invalid sample memory: got=%d, want=%d", got, want)
	}
}

func TestParseMetadataErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  []byte
		want error
	}{
		{
			name: "empty",
			raw:  nil,
			want: io.EOF,
		},
		{
			name: "no-end",
			raw:  []byte{0x01, 'o', 'l', 's', 0x00},
			want: io.EOF,
		},
		{
			name: "short-u32",
			raw:  []byte{0x21, 0x00, 0x01},
			want: io.ErrUnexpectedEOF,
		},
		{
			name: "unterminated-string",
			raw:  []byte{0x01, 'o', 'l', 's'},
			want: io.EOF,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseMetadata(bytes.NewReader(tc.raw))
			if !errors.Is(err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.want)
			}
		})
	}

	for _, tc := range []struct {
		name string
		raw  []byte
		want string
	}{
		{
			name: "invalid-key",
			raw:  []byte{0x60, 0x00},
			want: "sump: corrupted sample stream: invalid metadata key 0x60",
		},
		{
			name: "long-string",
			raw:  append([]byte{0x01}, bytes.Repeat([]byte{'x'}, 300)...),
			want: "sump: corrupted sample stream: metadata string longer than 256 bytes",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseMetadata(bytes.NewReader(tc.raw))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; got != want {
				t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, want)
			}
		})
	}
}

func TestParseMetadataUnknownKeys(t *testing.T) {
	raw := []byte{
		0x1f, 'x', 0x00, // unknown string
		0x3f, 0, 0, 0, 1, // unknown u32
		0x5f, 7, // unknown u8
		0x40, 16,
		0x00,
	}
	md, err := parseMetadata(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("could not parse metadata: %+v", err)
	}
	if got, want := md, (Metadata{Probes: 16}); got != want {
		t.Fatalf("invalid metadata: got=%+v, want=%+v", got, want)
	}
}

func TestDriverIdentify(t *testing.T) {
	var ds devices
	drv := newTestDriver(&ds)

	id, err := drv.Identify(context.Background())
	if err != nil {
		t.Fatalf("could not identify device: %+v", err)
	}
	if got, want := id, "1ALS"; got != want {
		t.Fatalf("invalid device ID: got=%q, want=%q", got, want)
	}

	md, err := drv.Metadata(context.Background())
	if err != nil {
		t.Fatalf("could not query metadata: %+v", err)
	}
	if got, want := md.Name, "Simulated Logic Sniffer"; got != want {
		t.Fatalf("invalid device name: got=%q, want=%q", got, want)
	}

	if got, want := ds.n(), 2; got != want {
		t.Fatalf("invalid number of dialed channels: got=%d, want=%d", got, want)
	}
	for i, dev := range ds.devs {
		if got := dev.Record().Closed; got != 1 {
			t.Fatalf("channel %d closed %d times", i, got)
		}
	}
}

func TestDriverIdentifyErrors(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		ds := devices{mk: func() *simdev.Device {
			dev := simdev.New()
			dev.ID = ""
			return dev
		}}
		drv := newTestDriver(&ds, WithTimeout(10*time.Millisecond))
		_, err := drv.Identify(context.Background())
		if err == nil {
			t.Fatalf("expected an error")
		}
		if got, want := err.Error(), "sump: identify timed out after 10ms"; got != want {
			t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, want)
		}
		if got, want := ds.last().Record().Closed, 1; got != want {
			t.Fatalf("channel closed %d times", got)
		}
	})

	t.Run("short-reply", func(t *testing.T) {
		ds := devices{mk: func() *simdev.Device {
			dev := simdev.New()
			dev.Meta = []byte{0x01, 'o', 'l', 's'}
			return dev
		}}
		drv := newTestDriver(&ds, WithTimeout(10*time.Millisecond))
		_, err := drv.Metadata(context.Background())
		var terr *TimeoutError
		if !errors.As(err, &terr) {
			t.Fatalf("invalid error: %+v", err)
		}
	})
}
