// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

import (
	"fmt"
	"sort"
	"time"
)

// Firmware identifies a device command-set revision.
type Firmware string

const (
	// FirmwareSUMP is the original SUMP command set, also used by the
	// OpenBench Logic Sniffer "Demon core": read and delay counters are
	// packed in a single 0x81 command.
	FirmwareSUMP Firmware = "sump"

	// FirmwareLarge is the extended command set for devices with large
	// sample memories: 0x83 and 0x84 carry 32-bit delay and read counters.
	FirmwareLarge Firmware = "large"
)

// Capabilities is the per-firmware command table.
type Capabilities struct {
	Divider     byte // set-divider opcode
	Counts      byte // packed read/delay counters opcode
	Delay       byte // delay counter opcode (large counts)
	Read        byte // read counter opcode (large counts)
	SetFlags    byte // set-flags opcode
	TrigMask    byte // stage-0 trigger mask opcode
	TrigValue   byte // stage-0 trigger value opcode
	TrigConfig  byte // stage-0 trigger configuration opcode
	LargeCounts bool // use Delay/Read instead of Counts

	// Reverse reports whether samples are sent newest first.
	Reverse bool

	// Step is the counter granularity, in samples. It doubles in
	// demultiplex mode.
	Step int

	// LiveFlags lists the mode flags (inverted, external clock, test
	// modes, number scheme, filter) the firmware honours.
	// Flags not listed here are always sent cleared.
	LiveFlags Flags
}

// Firmwares is the capability table, indexed by DeviceProfile.Firmware.
var Firmwares = map[Firmware]Capabilities{
	FirmwareSUMP: {
		Divider:    cmdDivider,
		Counts:     cmdCounts,
		SetFlags:   cmdFlags,
		TrigMask:   cmdTrigMask,
		TrigValue:  cmdTrigValue,
		TrigConfig: cmdTrigConfig,
		Reverse:    true,
		Step:       4,
	},
	FirmwareLarge: {
		Divider:     cmdDivider,
		Delay:       cmdDelayCount,
		Read:        cmdReadCount,
		SetFlags:    cmdFlags,
		TrigMask:    cmdTrigMask,
		TrigValue:   cmdTrigValue,
		TrigConfig:  cmdTrigConfig,
		LargeCounts: true,
		Reverse:     true,
		Step:        4,
	},
}

// DeviceProfile describes the capability bounds of a capture device.
// Profiles are plain values and are never modified by this package.
type DeviceProfile struct {
	Name        string
	Description string
	Firmware    Firmware

	ClockSpeed    uint32 // maximum single-edge sample clock, in Hz
	Groups        int    // number of 8-bit channel groups
	SampleMemory  int    // sample buffer capacity, in samples
	TriggerStages int
	SupportsRLE   bool
	SupportsDDR   bool

	// ReadTimeout bounds the wait for device data, from the arm command
	// to the last sample.
	ReadTimeout time.Duration
}

func (p DeviceProfile) caps() (Capabilities, error) {
	if p.ClockSpeed == 0 {
		return Capabilities{}, configErrorf("profile", "profile %q has no clock speed", p.Name)
	}
	if p.Groups != nGroups {
		return Capabilities{}, configErrorf("profile", "profile %q has %d channel groups (want %d)", p.Name, p.Groups, nGroups)
	}
	caps, ok := Firmwares[p.Firmware]
	if !ok {
		return Capabilities{}, configErrorf("profile", "profile %q has unknown firmware %q", p.Name, p.Firmware)
	}
	if caps.Step <= 0 {
		return Capabilities{}, configErrorf("profile", "firmware %q has invalid counter step %d", p.Firmware, caps.Step)
	}
	return caps, nil
}

func (p DeviceProfile) timeout() time.Duration {
	if p.ReadTimeout <= 0 {
		return defaultReadTimeout
	}
	return p.ReadTimeout
}

var profiles = map[string]DeviceProfile{
	"ols": {
		Name:          "ols",
		Description:   "OpenBench Logic Sniffer",
		Firmware:      FirmwareSUMP,
		ClockSpeed:    defaultClock,
		Groups:        nGroups,
		SampleMemory:  24 * 1024,
		TriggerStages: 4,
		SupportsRLE:   true,
		SupportsDDR:   true,
		ReadTimeout:   defaultReadTimeout,
	},
	"sump": {
		Name:          "sump",
		Description:   "SUMP logic analyzer (Spartan-3 board)",
		Firmware:      FirmwareSUMP,
		ClockSpeed:    defaultClock,
		Groups:        nGroups,
		SampleMemory:  16 * 1024,
		TriggerStages: 4,
		SupportsRLE:   true,
		SupportsDDR:   true,
		ReadTimeout:   defaultReadTimeout,
	},
	"pipistrello": {
		Name:          "pipistrello",
		Description:   "Pipistrello OLS (64 MiB DDR memory)",
		Firmware:      FirmwareLarge,
		ClockSpeed:    defaultClock,
		Groups:        nGroups,
		SampleMemory:  16 * 1024 * 1024,
		TriggerStages: 4,
		SupportsRLE:   true,
		SupportsDDR:   true,
		ReadTimeout:   10 * time.Second,
	},
	"virtual": {
		Name:          "virtual",
		Description:   "Virtual LogicSniffer",
		Firmware:      FirmwareSUMP,
		ClockSpeed:    defaultClock,
		Groups:        nGroups,
		SampleMemory:  256 * 1024,
		TriggerStages: 4,
		SupportsRLE:   true,
		SupportsDDR:   true,
		ReadTimeout:   defaultReadTimeout,
	},
}

// LookupProfile returns the built-in profile with the given name.
func LookupProfile(name string) (DeviceProfile, error) {
	p, ok := profiles[name]
	if !ok {
		return DeviceProfile{}, fmt.Errorf("%w %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// ProfileNames returns the sorted list of built-in profile names.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
