// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

import (
	"strings"
)

// Flags is the value of the device flag register.
type Flags uint32

const (
	FlagDemux            Flags = 1 << 0
	FlagFilter           Flags = 1 << 1
	FlagGroup1Disabled   Flags = 1 << 2
	FlagGroup2Disabled   Flags = 1 << 3
	FlagGroup3Disabled   Flags = 1 << 4
	FlagGroup4Disabled   Flags = 1 << 5
	FlagExternal         Flags = 1 << 6
	FlagInverted         Flags = 1 << 7
	FlagRLE              Flags = 1 << 8
	FlagNumberScheme     Flags = 1 << 9
	FlagExternalTestMode Flags = 1 << 10
	FlagInternalTestMode Flags = 1 << 11

	flagGroupShift = 2
	flagGroups     = FlagGroup1Disabled | FlagGroup2Disabled | FlagGroup3Disabled | FlagGroup4Disabled
	flagModes      = FlagFilter | FlagExternal | FlagInverted | FlagNumberScheme | FlagExternalTestMode | FlagInternalTestMode
)

var flagNames = []struct {
	f    Flags
	name string
}{
	{FlagDemux, "DEMUX"},
	{FlagFilter, "FILTER"},
	{FlagGroup1Disabled, "GROUP1_DISABLED"},
	{FlagGroup2Disabled, "GROUP2_DISABLED"},
	{FlagGroup3Disabled, "GROUP3_DISABLED"},
	{FlagGroup4Disabled, "GROUP4_DISABLED"},
	{FlagExternal, "EXTERNAL"},
	{FlagInverted, "INVERTED"},
	{FlagRLE, "RLE"},
	{FlagNumberScheme, "NUMBER_SCHEME"},
	{FlagExternalTestMode, "EXTERNAL_TEST_MODE"},
	{FlagInternalTestMode, "INTERNAL_TEST_MODE"},
}

// Has reports whether all bits of v are set.
func (f Flags) Has(v Flags) bool { return f&v == v }

// GroupDisabled reports whether channel group i (0-based) is disabled.
func (f Flags) GroupDisabled(i int) bool {
	return f.Has(FlagGroup1Disabled << uint(i))
}

// EnabledGroups returns the indices of the enabled channel groups,
// in wire order.
func (f Flags) EnabledGroups() []int {
	grps := make([]int, 0, nGroups)
	for i := 0; i < nGroups; i++ {
		if !f.GroupDisabled(i) {
			grps = append(grps, i)
		}
	}
	return grps
}

// ChannelMask returns the channel mask covered by the enabled groups.
func (f Flags) ChannelMask() uint32 {
	var mask uint32
	for _, i := range f.EnabledGroups() {
		mask |= groupMask << (8 * uint(i))
	}
	return mask
}

func (f Flags) String() string {
	if f == 0 {
		return "0"
	}
	var names []string
	for _, v := range flagNames {
		if f.Has(v.f) {
			names = append(names, v.name)
		}
	}
	return strings.Join(names, "|")
}

// BuildFlags computes the flag register for a capture.
//
// Group i is disabled when its 8 mask bits are all zero. In demultiplex
// mode, groups 3 and 4 are also disabled when their paired groups 1 and 2
// are. Mode flags are only set when the profile firmware lists them as live.
func BuildFlags(cfg Config, prof DeviceProfile) (Flags, error) {
	caps, err := prof.caps()
	if err != nil {
		return 0, err
	}

	var (
		f   Flags
		ddr = cfg.SampleRate > prof.ClockSpeed
	)
	if ddr {
		f |= FlagDemux
	}

	var disabled [nGroups]bool
	for i := range disabled {
		disabled[i] = (cfg.EnabledChannels>>(8*uint(i)))&groupMask == 0
	}
	if ddr {
		disabled[2] = disabled[2] || disabled[0]
		disabled[3] = disabled[3] || disabled[1]
	}
	for i, off := range disabled {
		if off {
			f |= FlagGroup1Disabled << uint(i)
		}
	}

	if cfg.RLE {
		f |= FlagRLE
	}

	var modes Flags
	if cfg.Filter {
		modes |= FlagFilter
	}
	if cfg.ClockSource == ClockExternal {
		modes |= FlagExternal
	}
	if cfg.Inverted {
		modes |= FlagInverted
	}
	if cfg.NumberScheme {
		modes |= FlagNumberScheme
	}
	switch cfg.TestMode {
	case TestModeInternal:
		modes |= FlagInternalTestMode
	case TestModeExternal:
		modes |= FlagExternalTestMode
	}
	f |= modes & caps.LiveFlags & flagModes

	return f, nil
}
