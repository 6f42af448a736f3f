// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ols-decode decodes and displays raw sample streams recorded from a
// logic analyzer.
//
// The acquisition options must match the ones the stream was captured
// with.
//
// Usage: ols-decode [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> ols-decode -rate 200000000 -mask 0x00ff00ff -n 8 ./testdata/ddr.raw
//	=== ./testdata/ddr.raw ===
//	# rate=200000000 Hz channels=8 samples=8
//	00000000: 01 02 03 04 05 06 07 08
package main // import "github.com/lavachemist/ols/cmd/ols-decode"

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/lavachemist/ols/profiledb"
	"github.com/lavachemist/ols/sump"
)

func main() {
	log.SetPrefix("ols-decode: ")
	log.SetFlags(0)

	xmain(os.Stdout, os.Args[1:])
}

func xmain(stdout io.Writer, args []string) {
	var (
		fset = flag.NewFlagSet("ols-decode", flag.ExitOnError)

		db   = fset.String("db", os.Getenv("OLS_PROFILE_DB"), "profile catalog (driver:dsn), built-in profiles if empty")
		prof = fset.String("profile", "ols", "device profile")
		mask = fset.String("mask", "0xffffffff", "enabled channels mask")
		rate = fset.Uint("rate", 1_000_000, "sample rate, in Hz")

		cfg sump.Config
	)

	fset.IntVar(&cfg.SampleCount, "n", 4096, "number of samples")
	fset.BoolVar(&cfg.RLE, "rle", false, "stream is run-length encoded")
	fset.BoolVar(&cfg.Clamp, "clamp", false, "sample count was clamped to the device memory")

	fset.Usage = func() {
		fmt.Fprintf(os.Stderr, `ols-decode decodes and displays raw sample streams.

Usage: ols-decode [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> ols-decode -rate 200000000 -mask 0x00ff00ff -n 8 ./testdata/ddr.raw
 === ./testdata/ddr.raw ===
 # rate=200000000 Hz channels=8 samples=8
 00000000: 01 02 03 04 05 06 07 08

Options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input stream file")
	}

	v, err := strconv.ParseUint(*mask, 0, 32)
	if err != nil {
		log.Fatalf("invalid channel mask %q: %+v", *mask, err)
	}
	cfg.EnabledChannels = uint32(v)
	cfg.SampleRate = uint32(*rate)

	cat, err := profiledb.OpenCatalog(*db)
	if err != nil {
		log.Fatalf("could not open profile catalog: %+v", err)
	}
	defer profiledb.Close(cat)

	p, err := cat.Profile(context.Background(), *prof)
	if err != nil {
		log.Fatalf("could not find device profile %q: %+v", *prof, err)
	}

	for _, fname := range fset.Args() {
		err := process(stdout, fname, cfg, p)
		if err != nil {
			log.Fatalf("could not decode file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, cfg sump.Config, prof sump.DeviceProfile) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	res, err := sump.DecodeStream(bufio.NewReader(f), cfg, prof)
	if err != nil {
		return fmt.Errorf("could not decode stream: %w", err)
	}

	fmt.Fprintf(w, "=== %s ===\n", fname)
	_, err = res.WriteTo(w)
	return err
}
