// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package httpapi

import (
	"github.com/lavachemist/ols/sump"
)

// Profile is the JSON form of a sump.DeviceProfile.
type Profile struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Firmware      string `json:"firmware"`
	ClockSpeed    uint32 `json:"clock_speed"`
	Groups        int    `json:"groups"`
	SampleMemory  int    `json:"sample_memory"`
	TriggerStages int    `json:"trigger_stages"`
	RLE           bool   `json:"rle"`
	DDR           bool   `json:"ddr"`
	ReadTimeout   string `json:"read_timeout"`
}

func newProfile(p sump.DeviceProfile) Profile {
	return Profile{
		Name:          p.Name,
		Description:   p.Description,
		Firmware:      string(p.Firmware),
		ClockSpeed:    p.ClockSpeed,
		Groups:        p.Groups,
		SampleMemory:  p.SampleMemory,
		TriggerStages: p.TriggerStages,
		RLE:           p.SupportsRLE,
		DDR:           p.SupportsDDR,
		ReadTimeout:   p.ReadTimeout.String(),
	}
}

// DeviceRequest selects a device.
// Transport defaults to "serial", Baud to 115200.
type DeviceRequest struct {
	Profile   string `json:"profile"`
	Transport string `json:"transport,omitempty"`
	Port      string `json:"port,omitempty"`
	Baud      int    `json:"baud,omitempty"`
}

// Stage is the JSON form of a sump.TriggerStage.
type Stage struct {
	Mask    uint32 `json:"mask"`
	Value   uint32 `json:"value"`
	Delay   uint16 `json:"delay,omitempty"`
	Level   uint8  `json:"level,omitempty"`
	Channel uint8  `json:"channel,omitempty"`
	Serial  bool   `json:"serial,omitempty"`
	Start   bool   `json:"start,omitempty"`
}

// AcquireRequest is the body of a POST /acquire request.
type AcquireRequest struct {
	DeviceRequest

	Rate     uint32  `json:"rate"`
	Channels uint32  `json:"channels"` // enabled channels mask
	Samples  int     `json:"samples"`
	Ratio    float64 `json:"ratio"`
	Trigger  bool    `json:"trigger,omitempty"`
	Triggers []Stage `json:"triggers,omitempty"`
	RLE      bool    `json:"rle,omitempty"`
	Clamp    bool    `json:"clamp,omitempty"`
	External bool    `json:"external_clock,omitempty"`
	Inverted bool    `json:"inverted,omitempty"`
	Filter   bool    `json:"filter,omitempty"`
}

func (req AcquireRequest) config() sump.Config {
	cfg := sump.Config{
		SampleRate:      req.Rate,
		EnabledChannels: req.Channels,
		TriggerEnabled:  req.Trigger,
		Ratio:           req.Ratio,
		SampleCount:     req.Samples,
		Clamp:           req.Clamp,
		RLE:             req.RLE,
		Inverted:        req.Inverted,
		Filter:          req.Filter,
		BaudRate:        req.Baud,
		Port:            req.Port,
	}
	if req.External {
		cfg.ClockSource = sump.ClockExternal
	}
	for _, st := range req.Triggers {
		cfg.Triggers = append(cfg.Triggers, sump.TriggerStage(st))
	}
	return cfg
}

// AcquireResponse is the JSON result of an acquisition.
type AcquireResponse struct {
	ID       string   `json:"id"`
	Rate     uint32   `json:"rate"`
	Channels int      `json:"channels"`
	Samples  []uint32 `json:"samples"`
}

// Metadata is the JSON form of sump.Metadata.
type Metadata struct {
	Name          string `json:"name,omitempty"`
	FPGAVersion   string `json:"fpga_version,omitempty"`
	Ancillary     string `json:"ancillary_version,omitempty"`
	Probes        int    `json:"probes,omitempty"`
	SampleMemory  int    `json:"sample_memory,omitempty"`
	DynamicMemory int    `json:"dynamic_memory,omitempty"`
	MaxSampleRate uint32 `json:"max_sample_rate,omitempty"`
	Protocol      int    `json:"protocol,omitempty"`
}

func newMetadata(md sump.Metadata) *Metadata {
	v := Metadata(md)
	return &v
}

// IdentifyResponse is the result of a POST /identify request.
type IdentifyResponse struct {
	ID       string    `json:"id"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Error is the body of a failed request.
type Error struct {
	Error string `json:"error"`
}

// Version is the reply of the version endpoint.
type Version struct {
	Version string `json:"version"`
	Sum     string `json:"sum,omitempty"`
}
