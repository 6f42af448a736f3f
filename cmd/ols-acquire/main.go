// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ols-acquire runs one acquisition on one or more logic analyzers
// and dumps the captured samples.
//
// Usage: ols-acquire [OPTIONS] PORT1 [PORT2 [PORT3 ...]]
//
// Devices are captured concurrently. Samples are written as hex dumps
// to stdout or, with -o, to one file per port.
//
// Example:
//
//	$> ols-acquire -rate 20000000 -mask 0xff -n 1024 -ratio 0.5 -trigger /dev/ttyACM0
//	ols-acquire: /dev/ttyACM0: divider=4 ddr=false rle=false read=1024 delay=512 rate=20000000Hz
//	=== /dev/ttyACM0 ===
//	# rate=20000000 Hz channels=8 samples=1024
//	00000000: 00 01 03 07 0f 1f 3f 7f
//	[...]
package main // import "github.com/lavachemist/ols/cmd/ols-acquire"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lavachemist/ols/profiledb"
	"github.com/lavachemist/ols/sump"
	"github.com/lavachemist/ols/transport"
	"golang.org/x/sync/errgroup"
)

type options struct {
	profile   string
	transport string
	baud      int
	timeout   time.Duration
	outdir    string

	cfg sump.Config
}

func main() {
	log.SetPrefix("ols-acquire: ")
	log.SetFlags(0)

	var (
		opts options

		db    = flag.String("db", os.Getenv("OLS_PROFILE_DB"), "profile catalog (driver:dsn), built-in profiles if empty")
		mask  = flag.String("mask", "0xffffffff", "enabled channels mask")
		ext   = flag.Bool("ext", false, "sample on the external clock")
		trig  = flag.Bool("trigger", false, "enable the trigger")
		tmask = flag.String("trig-mask", "0x1", "trigger mask (stage 0)")
		tval  = flag.String("trig-value", "0x1", "trigger value (stage 0)")
	)

	flag.StringVar(&opts.profile, "profile", "ols", "device profile")
	flag.StringVar(&opts.transport, "transport", "serial", "transport kind ("+strings.Join(transport.Kinds(), ", ")+")")
	flag.IntVar(&opts.baud, "baud", 115200, "serial baud rate")
	flag.DurationVar(&opts.timeout, "timeout", 0, "acquisition timeout (default: profile read timeout)")
	flag.StringVar(&opts.outdir, "o", "", "output directory for sample dumps (default: stdout)")

	flag.Func("rate", "sample rate, in Hz (default 1000000)", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 32)
		opts.cfg.SampleRate = uint32(v)
		return err
	})
	flag.IntVar(&opts.cfg.SampleCount, "n", 4096, "number of samples")
	flag.Float64Var(&opts.cfg.Ratio, "ratio", 0.5, "fraction of samples before the trigger")
	flag.BoolVar(&opts.cfg.RLE, "rle", false, "enable run-length encoding")
	flag.BoolVar(&opts.cfg.Clamp, "clamp", false, "clamp the number of samples to the device memory")
	flag.BoolVar(&opts.cfg.Filter, "filter", false, "enable the noise filter")
	flag.BoolVar(&opts.cfg.Inverted, "inverted", false, "sample on the falling edge of the external clock")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `ols-acquire runs an acquisition on logic analyzers.

Usage: ols-acquire [OPTIONS] PORT1 [PORT2 [PORT3 ...]]

Options:
`)
		flag.PrintDefaults()
	}

	opts.cfg.SampleRate = 1_000_000
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing device port")
	}

	var err error
	opts.cfg.EnabledChannels, err = parseU32(*mask)
	if err != nil {
		log.Fatalf("invalid channel mask %q: %+v", *mask, err)
	}
	if *ext {
		opts.cfg.ClockSource = sump.ClockExternal
	}
	if *trig {
		opts.cfg.TriggerEnabled = true
		var st sump.TriggerStage
		st.Mask, err = parseU32(*tmask)
		if err != nil {
			log.Fatalf("invalid trigger mask %q: %+v", *tmask, err)
		}
		st.Value, err = parseU32(*tval)
		if err != nil {
			log.Fatalf("invalid trigger value %q: %+v", *tval, err)
		}
		st.Start = true
		opts.cfg.Triggers = []sump.TriggerStage{st}
	}

	cat, err := profiledb.OpenCatalog(*db)
	if err != nil {
		log.Fatalf("could not open profile catalog: %+v", err)
	}
	defer profiledb.Close(cat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = run(ctx, cat, opts, flag.Args(), os.Stdout)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

var dialer = transport.Dialer

func run(ctx context.Context, cat profiledb.Catalog, opts options, ports []string, stdout io.Writer) error {
	prof, err := cat.Profile(ctx, opts.profile)
	if err != nil {
		return fmt.Errorf("could not find device profile %q: %w", opts.profile, err)
	}

	var (
		res = make([]sump.Result, len(ports))
		msg = log.New(log.Writer(), log.Prefix(), 0)
	)

	grp, ctx := errgroup.WithContext(ctx)
	for i := range ports {
		i := i
		port := ports[i]
		grp.Go(func() error {
			cfg := opts.cfg
			cfg.Port = port
			cfg.BaudRate = opts.baud

			plan, err := sump.NewPlan(cfg, prof)
			if err != nil {
				return fmt.Errorf("invalid configuration for %q: %w", port, err)
			}
			msg.Printf("%s: %v", port, plan)

			drv := sump.NewDriver(
				prof, dialer(opts.transport, port, opts.baud),
				sump.WithLogger(log.New(msg.Writer(), msg.Prefix()+port+": ", 0)),
				sump.WithTimeout(opts.timeout),
			)
			res[i], err = drv.Acquire(ctx, cfg)
			if err != nil {
				return fmt.Errorf("could not acquire samples from %q: %w", port, err)
			}
			return nil
		})
	}

	err = grp.Wait()
	if err != nil {
		return err
	}

	for i, port := range ports {
		err = write(opts.outdir, port, res[i], stdout)
		if err != nil {
			return err
		}
	}

	return nil
}

func write(dir, port string, res sump.Result, stdout io.Writer) error {
	if dir == "" {
		fmt.Fprintf(stdout, "=== %s ===\n", port)
		_, err := res.WriteTo(stdout)
		return err
	}

	name := filepath.Join(dir, dumpName(port))
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("could not create sample dump %q: %w", name, err)
	}
	defer f.Close()

	_, err = res.WriteTo(f)
	if err != nil {
		return fmt.Errorf("could not write sample dump %q: %w", name, err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close sample dump %q: %w", name, err)
	}

	return nil
}

// dumpName returns the name of the dump file of a port.
func dumpName(port string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, strings.TrimPrefix(port, "/dev/"))
	if name == "" {
		name = "sim"
	}
	return name + ".txt"
}
