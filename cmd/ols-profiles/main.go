// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ols-profiles inspects the device profiles of a profile catalog.
//
// Usage: ols-profiles [OPTIONS]
//
// Without options, ols-profiles lists the profiles of the catalog.
// With -name, it displays one profile.
// With -probe, it queries the metadata of a device and displays the
// profile derived from it.
//
// Example:
//
//	$> ols-profiles -db sqlite:./profiles.db -name ols
//	=== ols ===
//	description: OpenBench Logic Sniffer
//	firmware:    sump
//	clock:       100000000 Hz
//	memory:      24576 samples
//	stages:      4
//	rle:         true
//	ddr:         true
//	timeout:     5s
package main // import "github.com/lavachemist/ols/cmd/ols-profiles"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/lavachemist/ols/profiledb"
	"github.com/lavachemist/ols/sump"
	"github.com/lavachemist/ols/transport"
)

type options struct {
	name      string
	probe     string
	transport string
	baud      int
}

func main() {
	log.SetPrefix("ols-profiles: ")
	log.SetFlags(0)

	var (
		opts options
		db   = flag.String("db", os.Getenv("OLS_PROFILE_DB"), "profile catalog (driver:dsn), built-in profiles if empty")
	)

	flag.StringVar(&opts.name, "name", "", "profile to display")
	flag.StringVar(&opts.probe, "probe", "", "device port to probe for metadata")
	flag.StringVar(&opts.transport, "transport", "serial", "transport kind of the probed device ("+strings.Join(transport.Kinds(), ", ")+")")
	flag.IntVar(&opts.baud, "baud", 115200, "serial baud rate of the probed device")

	flag.Parse()

	cat, err := profiledb.OpenCatalog(*db)
	if err != nil {
		log.Fatalf("could not open profile catalog: %+v", err)
	}
	defer profiledb.Close(cat)

	err = doQuery(context.Background(), os.Stdout, cat, opts)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

var dialer = transport.Dialer

func doQuery(ctx context.Context, w io.Writer, cat profiledb.Catalog, opts options) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch {
	case opts.probe != "":
		drv := sump.NewDriver(
			sump.DeviceProfile{Name: opts.probe},
			dialer(opts.transport, opts.probe, opts.baud),
		)
		md, err := drv.Metadata(ctx)
		if err != nil {
			return fmt.Errorf("could not probe device %q: %w", opts.probe, err)
		}
		display(w, md.Profile())

	case opts.name != "":
		p, err := cat.Profile(ctx, opts.name)
		if err != nil {
			return fmt.Errorf("could not get profile %q: %w", opts.name, err)
		}
		display(w, p)

	default:
		ps, err := cat.Profiles(ctx)
		if err != nil {
			return fmt.Errorf("could not list profiles: %w", err)
		}
		for _, p := range ps {
			fmt.Fprintf(w, "%-12s %s\n", p.Name, p.Description)
		}
	}

	return nil
}

func display(w io.Writer, p sump.DeviceProfile) {
	fmt.Fprintf(w, "=== %s ===\n", p.Name)
	fmt.Fprintf(w, "description: %s\n", p.Description)
	fmt.Fprintf(w, "firmware:    %s\n", p.Firmware)
	fmt.Fprintf(w, "clock:       %d Hz\n", p.ClockSpeed)
	fmt.Fprintf(w, "memory:      %d samples\n", p.SampleMemory)
	fmt.Fprintf(w, "stages:      %d\n", p.TriggerStages)
	fmt.Fprintf(w, "rle:         %v\n", p.SupportsRLE)
	fmt.Fprintf(w, "ddr:         %v\n", p.SupportsDDR)
	fmt.Fprintf(w, "timeout:     %v\n", p.ReadTimeout)
}
