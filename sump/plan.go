// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

import (
	"fmt"
	"math"
)

// Plan holds the acquisition parameters derived from a Config and a
// DeviceProfile.
type Plan struct {
	Divider      uint32 // clock divider register value
	DDR          bool   // demultiplex (double data rate) mode
	RLE          bool
	ReadCounter  int    // number of samples to read back
	DelayCounter int    // round(ReadCounter*Ratio), in [0, ReadCounter]
	Rate         uint32 // effective sample rate, in Hz

	Step    int  // counter granularity, in samples
	Reverse bool // samples are sent newest first
}

// wordSamples returns the number of time steps carried by a wire word.
func (p Plan) wordSamples() int {
	if p.DDR {
		return 2
	}
	return 1
}

// NewPlan computes the clock divider, the demultiplex decision and the
// read/delay counters of a capture.
// NewPlan is a pure function: it performs no I/O.
func NewPlan(cfg Config, prof DeviceProfile) (Plan, error) {
	caps, err := prof.caps()
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	switch {
	case cfg.SampleRate == 0:
		return plan, configErrorf("sample-rate", "sample rate must be positive")
	case uint64(cfg.SampleRate) > 2*uint64(prof.ClockSpeed):
		return plan, configErrorf("sample-rate",
			"sample rate %d Hz exceeds device maximum %d Hz",
			cfg.SampleRate, 2*uint64(prof.ClockSpeed),
		)
	}

	plan.DDR = cfg.SampleRate > prof.ClockSpeed
	if plan.DDR && !prof.SupportsDDR {
		return plan, configErrorf("sample-rate",
			"sample rate %d Hz needs demultiplex mode, not supported by %q",
			cfg.SampleRate, prof.Name,
		)
	}

	err = checkChannels(cfg.EnabledChannels, plan.DDR)
	if err != nil {
		return plan, err
	}

	if cfg.RLE && !prof.SupportsRLE {
		return plan, configErrorf("rle", "run-length encoding not supported by %q", prof.Name)
	}
	plan.RLE = cfg.RLE

	plan.Divider, plan.Rate, err = divider(cfg, prof.ClockSpeed, plan.DDR)
	if err != nil {
		return plan, err
	}

	plan.Step = caps.Step
	if plan.DDR {
		plan.Step *= 2
	}
	plan.Reverse = caps.Reverse

	plan.ReadCounter, err = readCounter(cfg, prof, caps, plan.Step)
	if err != nil {
		return plan, err
	}

	plan.DelayCounter, err = delayCounter(plan.ReadCounter, cfg.Ratio)
	if err != nil {
		return plan, err
	}

	if n := len(cfg.stages()); n > prof.TriggerStages {
		return plan, configErrorf("trigger",
			"%d trigger stages requested, %q supports %d",
			n, prof.Name, prof.TriggerStages,
		)
	}

	return plan, nil
}

func checkChannels(mask uint32, ddr bool) error {
	if mask == 0 {
		return configErrorf("channels", "no channel enabled")
	}
	if !ddr {
		return nil
	}

	// in demultiplex mode, groups 3 and 4 carry the second half of
	// the samples of groups 1 and 2.
	on := func(i uint) bool { return (mask>>(8*i))&groupMask != 0 }
	if on(0) != on(2) || on(1) != on(3) {
		lo := mask & 0xffff
		return configErrorf("channels",
			"channel mask 0x%08x: demultiplex mode needs groups 3/4 enabled like groups 1/2 (use 0x%08x)",
			mask, lo|lo<<16,
		)
	}
	return nil
}

func divider(cfg Config, clock uint32, ddr bool) (div, rate uint32, err error) {
	eff := uint64(cfg.SampleRate)
	if ddr {
		eff /= 2
	}
	d := uint64(clock)/eff - 1
	if d > divMask {
		return 0, 0, configErrorf("sample-rate",
			"sample rate %d Hz too low (divider 0x%x overflows 24 bits)",
			cfg.SampleRate, d,
		)
	}

	div = uint32(d)
	rate = clock / (div + 1)
	if ddr {
		rate *= 2
	}
	if cfg.ClockSource == ClockExternal {
		rate = cfg.SampleRate
	}
	return div, rate, nil
}

func readCounter(cfg Config, prof DeviceProfile, caps Capabilities, step int) (int, error) {
	if cfg.SampleCount <= 0 {
		return 0, configErrorf("sample-count", "sample count must be positive (got %d)", cfg.SampleCount)
	}

	capacity := prof.SampleMemory
	if !caps.LargeCounts {
		// packed counters are 16-bit wide, in units of step.
		if lim := (1 << 16) * step; capacity > lim {
			capacity = lim
		}
	}

	n := cfg.SampleCount
	if n > capacity {
		if !cfg.Clamp {
			return 0, configErrorf("sample-count",
				"sample count %d exceeds device capacity %d",
				n, capacity,
			)
		}
		n = capacity
	}

	n -= n % step
	if n == 0 {
		return 0, configErrorf("sample-count",
			"sample count %d below counter granularity %d",
			cfg.SampleCount, step,
		)
	}
	return n, nil
}

func delayCounter(read int, ratio float64) (int, error) {
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return 0, configErrorf("ratio", "trigger ratio %v outside [0,1]", ratio)
	}
	// math.Round rounds half away from zero.
	delay := int(math.Round(float64(read) * ratio))
	switch {
	case delay < 0:
		delay = 0
	case delay > read:
		delay = read
	}
	return delay, nil
}

func (p Plan) String() string {
	return fmt.Sprintf(
		"divider=%d ddr=%v rle=%v read=%d delay=%d rate=%dHz",
		p.Divider, p.DDR, p.RLE, p.ReadCounter, p.DelayCounter, p.Rate,
	)
}
