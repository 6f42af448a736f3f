// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// metadata keys
const (
	mdEnd           = 0x00
	mdName          = 0x01
	mdFPGAVersion   = 0x02
	mdAncillary     = 0x03
	mdProbes        = 0x20
	mdSampleMemory  = 0x21
	mdDynamicMemory = 0x22
	mdMaxSampleRate = 0x23
	mdProtocol      = 0x24
	mdProbesU8      = 0x40
	mdProtocolU8    = 0x41

	mdMaxStr = 256
)

// Metadata is the self-description returned by a device.
type Metadata struct {
	Name          string
	FPGAVersion   string
	Ancillary     string // ancillary (e.g. PIC) firmware version
	Probes        int
	SampleMemory  int // bytes
	DynamicMemory int // bytes
	MaxSampleRate uint32
	Protocol      int
}

// Profile derives a device profile from the metadata.
// Fields the device did not report take the values of the "ols" profile.
func (md Metadata) Profile() DeviceProfile {
	prof := profiles["ols"]
	if md.Name != "" {
		prof.Name = md.Name
	}
	prof.Description = strings.TrimSpace(md.Name + " " + md.FPGAVersion)

	if md.MaxSampleRate > 0 {
		prof.ClockSpeed = md.MaxSampleRate
		if prof.ClockSpeed > defaultClock {
			// rates above the base clock are reached through demultiplexing.
			prof.ClockSpeed = defaultClock
		}
	}

	if md.SampleMemory > 0 {
		prof.SampleMemory = md.SampleMemory / nGroups
	}
	if prof.SampleMemory > (1<<16)*Firmwares[FirmwareSUMP].Step {
		prof.Firmware = FirmwareLarge
	}
	return prof
}

// Identify returns the 4-byte identifier of the device ("1ALS" for
// SUMP-compatible firmwares).
func (drv *Driver) Identify(ctx context.Context) (string, error) {
	var id [4]byte
	err := drv.query(ctx, "identify", cmdID, func(r io.Reader) error {
		_, err := io.ReadFull(r, id[:])
		return err
	})
	if err != nil {
		return "", err
	}
	return string(id[:]), nil
}

// Metadata queries and decodes the device metadata block.
func (drv *Driver) Metadata(ctx context.Context) (Metadata, error) {
	var md Metadata
	err := drv.query(ctx, "metadata", cmdMetadata, func(r io.Reader) error {
		var err error
		md, err = parseMetadata(r)
		return err
	})
	return md, err
}

func (drv *Driver) query(ctx context.Context, op string, cmd byte, read func(r io.Reader) error) error {
	if !drv.lock() {
		return ErrBusy
	}
	defer drv.unlock()

	sess, err := drv.open()
	if err != nil {
		return err
	}
	defer sess.close()

	var buf cmdBuffer
	buf.reset()
	buf.short(cmd)
	err = sess.write(op, buf.p)
	if err != nil {
		return err
	}

	r := sess.reader(ctx, op, nil)
	err = read(r)
	switch {
	case err == nil:
		return nil
	case r.err != nil:
		sess.abort()
		return r.err
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return &ChannelError{Op: op, Err: io.ErrUnexpectedEOF}
	default:
		return err
	}
}

type mdDecoder struct {
	r   io.Reader
	buf []byte
	err error
}

func (dec *mdDecoder) load(n int) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, dec.buf[:n])
}

func (dec *mdDecoder) readU8() uint8 {
	dec.load(1)
	if dec.err != nil {
		return 0
	}
	return dec.buf[0]
}

func (dec *mdDecoder) readU32() uint32 {
	dec.load(4)
	if dec.err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(dec.buf[:4])
}

func (dec *mdDecoder) readStr() string {
	var o strings.Builder
	for {
		c := dec.readU8()
		if dec.err != nil {
			return ""
		}
		if c == 0 {
			return o.String()
		}
		if o.Len() >= mdMaxStr {
			dec.err = &CorruptionError{Err: fmt.Errorf("metadata string longer than %d bytes", mdMaxStr)}
			return ""
		}
		o.WriteByte(c)
	}
}

// parseMetadata decodes a metadata block: a sequence of (key, value)
// pairs terminated by a zero key. The 3 most significant bits of a key
// give the type of its value: null-terminated string, big-endian uint32
// or uint8.
func parseMetadata(r io.Reader) (Metadata, error) {
	var (
		md  Metadata
		dec = mdDecoder{r: r, buf: make([]byte, 4)}
	)
	for {
		key := dec.readU8()
		if dec.err != nil {
			return md, dec.err
		}
		if key == mdEnd {
			return md, nil
		}

		switch key >> 5 {
		case 0:
			v := dec.readStr()
			switch key {
			case mdName:
				md.Name = v
			case mdFPGAVersion:
				md.FPGAVersion = v
			case mdAncillary:
				md.Ancillary = v
			}
		case 1:
			v := dec.readU32()
			switch key {
			case mdProbes:
				md.Probes = int(v)
			case mdSampleMemory:
				md.SampleMemory = int(v)
			case mdDynamicMemory:
				md.DynamicMemory = int(v)
			case mdMaxSampleRate:
				md.MaxSampleRate = v
			case mdProtocol:
				md.Protocol = int(v)
			}
		case 2:
			v := dec.readU8()
			switch key {
			case mdProbesU8:
				md.Probes = int(v)
			case mdProtocolU8:
				md.Protocol = int(v)
			}
		default:
			return md, &CorruptionError{Err: fmt.Errorf("invalid metadata key 0x%02x", key)}
		}
		if dec.err != nil {
			return md, dec.err
		}
	}
}
