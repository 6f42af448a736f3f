// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

// ClockSource selects the sampling clock.
type ClockSource uint8

const (
	ClockInternal ClockSource = iota
	ClockExternal
)

func (c ClockSource) String() string {
	switch c {
	case ClockInternal:
		return "internal"
	case ClockExternal:
		return "external"
	default:
		return "invalid"
	}
}

// TestMode selects one of the device test-pattern generators.
type TestMode uint8

const (
	TestModeOff TestMode = iota
	TestModeInternal
	TestModeExternal
)

// TriggerStage configures one stage of the parallel/serial trigger.
type TriggerStage struct {
	Mask    uint32 // channels taking part in the match
	Value   uint32 // expected value of the masked channels
	Delay   uint16 // samples to wait after a match
	Level   uint8  // trigger level at which the stage is armed (0-3)
	Channel uint8  // serial-mode input channel (0-31)
	Serial  bool   // serial rather than parallel match
	Start   bool   // a match starts the capture
}

// config word layout of a trigger stage.
func (st TriggerStage) config() uint32 {
	v := uint32(st.Delay)
	v |= uint32(st.Level&0x3) << 16
	v |= uint32(st.Channel&0x1f) << 20
	if st.Serial {
		v |= 1 << 26
	}
	if st.Start {
		v |= 1 << 27
	}
	return v
}

// Config is a capture request.
// A Config is a value: it is never modified during an acquisition.
type Config struct {
	SampleRate      uint32  // requested sample rate, in Hz
	EnabledChannels uint32  // one bit per channel, 4 groups of 8 bits
	TriggerEnabled  bool
	Ratio           float64 // fraction of the buffer before the trigger, in [0,1]
	SampleCount     int     // requested number of samples (read counter)

	// Clamp allows the read counter to be clamped to the device
	// sample memory. When false, an oversized request is rejected.
	Clamp bool

	RLE          bool
	ClockSource  ClockSource
	Inverted     bool // sample on the falling edge of the external clock
	TestMode     TestMode
	NumberScheme bool // alternate channel numbering
	Filter       bool // noise filter

	// Triggers holds the trigger stages, stage 0 first.
	// An enabled trigger without stages fires immediately.
	Triggers []TriggerStage

	BaudRate int
	Port     string
}

func (cfg Config) stages() []TriggerStage {
	if !cfg.TriggerEnabled {
		return nil
	}
	if len(cfg.Triggers) == 0 {
		return []TriggerStage{{Start: true}}
	}
	return cfg.Triggers
}
