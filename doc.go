// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ols drives SUMP-compatible logic analyzers, such as the
// OpenBench Logic Sniffer.
//
// The acquisition engine lives in package sump. Package transport
// provides the serial, tty and FTDI channels to the devices, package
// profiledb the catalog of device profiles. Acquisitions are served by
// the ols-acquire and ols-shell commands, the ols-srv HTTP service and
// the ols-rc tdaq run-control process. Recorded streams are decoded by
// ols-decode, and ols-profiles inspects the profile catalog.
package ols // import "github.com/lavachemist/ols"

import (
	"fmt"
	"runtime/debug"
)

const modulePath = "github.com/lavachemist/ols"

// Version returns the version of ols and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	mods := append([]*debug.Module{&b.Main}, b.Deps...)
	for _, m := range mods {
		if m == nil || m.Path != modulePath {
			continue
		}
		if r := m.Replace; r != nil {
			switch {
			case r.Version != "" && r.Path != "":
				return fmt.Sprintf("%s %s", r.Path, r.Version), r.Sum
			case r.Version != "":
				return r.Version, r.Sum
			case r.Path != "":
				return r.Path, r.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
