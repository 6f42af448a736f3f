// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCancelled is returned when an acquisition was cancelled by its caller.
	ErrCancelled = errors.New("sump: acquisition cancelled")

	// ErrBusy is returned when an acquisition is requested while another
	// one still owns the channel.
	ErrBusy = errors.New("sump: acquisition already in progress")

	// ErrUnknownProfile is returned when a device profile lookup fails.
	ErrUnknownProfile = errors.New("sump: unknown device profile")
)

// ConfigError describes a capture configuration rejected before any
// channel I/O took place.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sump: invalid configuration (%s): %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// TimeoutError is returned when the device did not accept a command or
// did not emit data within the allowed time.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sump: %s timed out after %v", e.Op, e.After)
}

// ChannelError wraps a transport-level failure.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("sump: channel %s failed: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// CorruptionError is returned by the decoder when the sample stream is
// malformed. No partial result is ever returned alongside it.
type CorruptionError struct {
	Err error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("sump: corrupted sample stream: %v", e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }
