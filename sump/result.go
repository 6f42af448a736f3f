// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

import "io"

// Result is the outcome of a completed acquisition.
type Result struct {
	Rate     uint32   // effective sample rate, in Hz
	Samples  []uint32 // decoded samples, oldest first
	Channels int      // number of populated channels
}

func newResult(plan Plan, flags Flags, samples []uint32) Result {
	grps := 0
	for _, i := range flags.EnabledGroups() {
		// groups 3 and 4 only carry the second half of demultiplexed
		// samples.
		if plan.DDR && i >= 2 {
			continue
		}
		grps++
	}
	return Result{
		Rate:     plan.Rate,
		Samples:  samples,
		Channels: 8 * grps,
	}
}

// DecodeStream decodes a raw sample stream, as sent by a device running
// the acquisition cfg, into a result.
// It is the offline counterpart of Driver.Acquire, for recorded streams.
func DecodeStream(r io.Reader, cfg Config, prof DeviceProfile) (Result, error) {
	plan, err := NewPlan(cfg, prof)
	if err != nil {
		return Result{}, err
	}
	flags, err := BuildFlags(cfg, prof)
	if err != nil {
		return Result{}, err
	}
	samples, err := NewDecoder(r, plan, flags).Decode()
	if err != nil {
		return Result{}, err
	}
	return newResult(plan, flags, samples), nil
}
