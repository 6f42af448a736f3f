// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

import (
	"encoding/binary"
)

// short commands (1 byte)
const (
	cmdReset    = 0x00
	cmdRun      = 0x01 // arm the trigger
	cmdID       = 0x02
	cmdMetadata = 0x04
)

// long commands (opcode + 32-bit little-endian parameter)
const (
	cmdDivider    = 0x80
	cmdCounts     = 0x81
	cmdFlags      = 0x82
	cmdDelayCount = 0x83
	cmdReadCount  = 0x84

	cmdTrigMask   = 0xc0 // + 4*stage
	cmdTrigValue  = 0xc1 // + 4*stage
	cmdTrigConfig = 0xc2 // + 4*stage
)

type cmdBuffer struct {
	p []byte
}

func (buf *cmdBuffer) short(op byte) {
	buf.p = append(buf.p, op)
}

func (buf *cmdBuffer) long(op byte, v uint32) {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], v)
	buf.p = append(buf.p, op)
	buf.p = append(buf.p, p[:]...)
}

func (buf *cmdBuffer) reset() {
	for i := 0; i < resetRepeats; i++ {
		buf.short(cmdReset)
	}
}

// counts encodes the read/delay counters in units of plan.Step.
// Packed counters hold (n/step - 1) on 16 bits, so a zero delay wraps
// to 0xffff like the reference firmware client does.
func (buf *cmdBuffer) counts(caps Capabilities, plan Plan) {
	var (
		read  = uint32(plan.ReadCounter/plan.Step - 1)
		delay = uint32(plan.DelayCounter/plan.Step - 1)
	)
	if caps.LargeCounts {
		buf.long(caps.Delay, uint32(plan.DelayCounter/plan.Step))
		buf.long(caps.Read, read)
		return
	}
	buf.long(caps.Counts, (delay&0xffff)<<16|read&0xffff)
}

func (buf *cmdBuffer) trigger(caps Capabilities, stages []TriggerStage) {
	for i, st := range stages {
		off := byte(4 * i)
		buf.long(caps.TrigMask+off, st.Mask)
		buf.long(caps.TrigValue+off, st.Value)
		buf.long(caps.TrigConfig+off, st.config())
	}
}

// configure encodes the configuration sequence of a capture:
// reset, divider, flags, counters then trigger stages.
func configure(caps Capabilities, plan Plan, flags Flags, stages []TriggerStage) []byte {
	var buf cmdBuffer
	buf.reset()
	buf.long(caps.Divider, plan.Divider&divMask)
	buf.long(caps.SetFlags, uint32(flags))
	buf.counts(caps, plan)
	buf.trigger(caps, stages)
	return buf.p
}

// EncodeCommands returns the configuration command bytes a Driver would
// send for cfg, without the final arm command.
func EncodeCommands(cfg Config, prof DeviceProfile) ([]byte, error) {
	caps, err := prof.caps()
	if err != nil {
		return nil, err
	}
	plan, err := NewPlan(cfg, prof)
	if err != nil {
		return nil, err
	}
	flags, err := BuildFlags(cfg, prof)
	if err != nil {
		return nil, err
	}
	return configure(caps, plan, flags, cfg.stages()), nil
}
