// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcsrv

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-daq/tdaq"
	"github.com/lavachemist/ols/sump"
)

// Request is the body of a /config command.
type Request struct {
	Profile   string // device profile name
	Transport string // transport kind, see transport.Open
	Config    sump.Config
}

// request option bits
const (
	optTrigger uint32 = 1 << iota
	optClamp
	optRLE
	optExtClock
	optInverted
	optNumberScheme
	optFilter
)

// stage option bits
const (
	stgSerial uint32 = 1 << iota
	stgStart
)

// MarshalTDAQ encodes the request with the tdaq codec.
// The trigger ratio is carried in parts per million.
func (req Request) MarshalTDAQ() ([]byte, error) {
	var (
		buf = new(bytes.Buffer)
		enc = tdaq.NewEncoder(buf)
		cfg = req.Config
		opt uint32
	)
	for _, v := range []struct {
		ok  bool
		bit uint32
	}{
		{cfg.TriggerEnabled, optTrigger},
		{cfg.Clamp, optClamp},
		{cfg.RLE, optRLE},
		{cfg.ClockSource == sump.ClockExternal, optExtClock},
		{cfg.Inverted, optInverted},
		{cfg.NumberScheme, optNumberScheme},
		{cfg.Filter, optFilter},
	} {
		if v.ok {
			opt |= v.bit
		}
	}

	enc.WriteStr(req.Profile)
	enc.WriteStr(req.Transport)
	enc.WriteStr(cfg.Port)
	enc.WriteU32(uint32(cfg.BaudRate))
	enc.WriteU32(cfg.SampleRate)
	enc.WriteU32(cfg.EnabledChannels)
	enc.WriteU32(uint32(cfg.SampleCount))
	enc.WriteU32(uint32(math.Round(cfg.Ratio * 1e6)))
	enc.WriteU32(opt)
	enc.WriteU32(uint32(cfg.TestMode))

	enc.WriteU32(uint32(len(cfg.Triggers)))
	for _, st := range cfg.Triggers {
		var bits uint32
		if st.Serial {
			bits |= stgSerial
		}
		if st.Start {
			bits |= stgStart
		}
		enc.WriteU32(st.Mask)
		enc.WriteU32(st.Value)
		enc.WriteU32(uint32(st.Delay))
		enc.WriteU32(uint32(st.Level))
		enc.WriteU32(uint32(st.Channel))
		enc.WriteU32(bits)
	}

	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("rcsrv: could not encode request: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalTDAQ decodes a request encoded with MarshalTDAQ.
func (req *Request) UnmarshalTDAQ(p []byte) error {
	dec := tdaq.NewDecoder(bytes.NewReader(p))

	req.Profile = dec.ReadStr()
	req.Transport = dec.ReadStr()

	var cfg sump.Config
	cfg.Port = dec.ReadStr()
	cfg.BaudRate = int(dec.ReadU32())
	cfg.SampleRate = dec.ReadU32()
	cfg.EnabledChannels = dec.ReadU32()
	cfg.SampleCount = int(dec.ReadU32())
	cfg.Ratio = float64(dec.ReadU32()) / 1e6

	opt := dec.ReadU32()
	cfg.TriggerEnabled = opt&optTrigger != 0
	cfg.Clamp = opt&optClamp != 0
	cfg.RLE = opt&optRLE != 0
	if opt&optExtClock != 0 {
		cfg.ClockSource = sump.ClockExternal
	}
	cfg.Inverted = opt&optInverted != 0
	cfg.NumberScheme = opt&optNumberScheme != 0
	cfg.Filter = opt&optFilter != 0
	cfg.TestMode = sump.TestMode(dec.ReadU32())

	n := int(dec.ReadU32())
	if err := dec.Err(); err != nil {
		return fmt.Errorf("rcsrv: could not decode request: %w", err)
	}
	if n > 0 {
		if n > 4 {
			return fmt.Errorf("rcsrv: invalid number of trigger stages (%d)", n)
		}
		cfg.Triggers = make([]sump.TriggerStage, n)
	}
	for i := range cfg.Triggers {
		st := &cfg.Triggers[i]
		st.Mask = dec.ReadU32()
		st.Value = dec.ReadU32()
		st.Delay = uint16(dec.ReadU32())
		st.Level = uint8(dec.ReadU32())
		st.Channel = uint8(dec.ReadU32())
		bits := dec.ReadU32()
		st.Serial = bits&stgSerial != 0
		st.Start = bits&stgStart != 0
	}

	if err := dec.Err(); err != nil {
		return fmt.Errorf("rcsrv: could not decode request: %w", err)
	}
	req.Config = cfg
	return nil
}

// EncodeResult encodes an acquisition result as a /samples frame body:
// rate, number of channels and number of samples, followed by the
// samples, oldest first.
func EncodeResult(res sump.Result) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 12+4*len(res.Samples)))
	enc := tdaq.NewEncoder(buf)
	enc.WriteU32(res.Rate)
	enc.WriteU32(uint32(res.Channels))
	enc.WriteU32(uint32(len(res.Samples)))
	for _, v := range res.Samples {
		enc.WriteU32(v)
	}
	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("rcsrv: could not encode result: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeResult decodes a /samples frame body.
func DecodeResult(p []byte) (sump.Result, error) {
	var (
		res sump.Result
		dec = tdaq.NewDecoder(bytes.NewReader(p))
	)
	res.Rate = dec.ReadU32()
	res.Channels = int(dec.ReadU32())
	n := int(dec.ReadU32())
	if err := dec.Err(); err != nil {
		return res, fmt.Errorf("rcsrv: could not decode result header: %w", err)
	}
	if 4*n != len(p)-12 {
		return res, fmt.Errorf("rcsrv: invalid result frame (samples=%d, size=%d)", n, len(p))
	}
	res.Samples = make([]uint32, n)
	for i := range res.Samples {
		res.Samples[i] = dec.ReadU32()
	}
	if err := dec.Err(); err != nil {
		return res, fmt.Errorf("rcsrv: could not decode result samples: %w", err)
	}
	return res, nil
}
