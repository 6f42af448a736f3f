// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sump drives SUMP-compatible logic analyzers (OpenBench Logic
// Sniffer and derivatives) over a byte channel.
//
// A capture goes through three steps:
//   - BuildFlags and NewPlan turn a Config and a DeviceProfile into the
//     flag register, clock divider and read/delay counters;
//   - a Driver sends the command sequence, arms the device and waits for
//     the sample stream;
//   - a Decoder rebuilds the logical samples (group masking, run-length
//     expansion and demultiplexing) into a Result.
package sump // import "github.com/lavachemist/ols/sump"

import (
	"time"
)

const (
	nGroups      = 4 // number of 8-bit channel groups
	nChans       = 8 * nGroups
	groupMask    = 0xff
	rleMarker    = 0x80 // run-length marker bit of a group byte
	rlePayload   = 0x7f
	divMask      = 0xffffff // divider register is 24 bits wide
	resetRepeats = 5

	defaultClock       = 100_000_000 // Hz
	defaultReadTimeout = 5 * time.Second
	defaultPoll        = 50 * time.Millisecond
	defaultWrite       = 1 * time.Second
)
