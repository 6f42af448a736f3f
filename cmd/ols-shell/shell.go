// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/lavachemist/ols/profiledb"
	"github.com/lavachemist/ols/sump"
	"github.com/lavachemist/ols/transport"
)

var errQuit = errors.New("quit")

var dialer = transport.Dialer

type shell struct {
	cat  profiledb.Catalog
	prof sump.DeviceProfile
	cfg  sump.Config

	kind string
	port string
	drv  *sump.Driver
	msg  *log.Logger

	cmds map[string]command
}

type command struct {
	usage string
	help  string
	run   func(args []string, w io.Writer) error
}

func newShell(cat profiledb.Catalog, profile string) (*shell, error) {
	sh := &shell{
		cat: cat,
		cfg: sump.Config{
			SampleRate:      1_000_000,
			EnabledChannels: 0xffffffff,
			SampleCount:     4096,
			Ratio:           0.5,
		},
		msg: log.New(os.Stderr, "sump: ", 0),
	}
	sh.cmds = map[string]command{
		"help":     {"help", "list commands", sh.cmdHelp},
		"profiles": {"profiles", "list device profiles", sh.cmdProfiles},
		"profile":  {"profile NAME", "select the device profile", sh.cmdProfile},
		"open":     {"open KIND PORT [BAUD]", "select the device port", sh.cmdOpen},
		"set":      {"set KEY VALUE", "set a configuration value (rate, mask, n, ratio, rle, clamp, trigger, ext, filter)", sh.cmdSet},
		"trigger":  {"trigger STAGE MASK VALUE [DELAY]", "configure a parallel trigger stage", sh.cmdTrigger},
		"show":     {"show", "display the configuration", sh.cmdShow},
		"plan":     {"plan", "display the acquisition plan", sh.cmdPlan},
		"id":       {"id", "query the device identifier", sh.cmdID},
		"meta":     {"meta", "query the device metadata", sh.cmdMeta},
		"run":      {"run [FILE]", "run an acquisition and dump its samples", sh.cmdRun},
		"quit":     {"quit", "leave the shell", func([]string, io.Writer) error { return errQuit }},
	}

	err := sh.cmdProfile([]string{profile}, io.Discard)
	if err != nil {
		return nil, err
	}
	return sh, nil
}

func (sh *shell) exec(line string, w io.Writer) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd, ok := sh.cmds[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q (try \"help\")", args[0])
	}
	return cmd.run(args[1:], w)
}

func (sh *shell) complete(line string) []string {
	var out []string
	for name := range sh.cmds {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (sh *shell) cmdHelp(args []string, w io.Writer) error {
	names := make([]string, 0, len(sh.cmds))
	for name := range sh.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := sh.cmds[name]
		fmt.Fprintf(w, "  %-34s %s\n", cmd.usage, cmd.help)
	}
	return nil
}

func (sh *shell) cmdProfiles(args []string, w io.Writer) error {
	ps, err := sh.cat.Profiles(context.Background())
	if err != nil {
		return err
	}
	for _, p := range ps {
		fmt.Fprintf(w, "%-12s %-8s clock=%dHz memory=%d %s\n",
			p.Name, p.Firmware, p.ClockSpeed, p.SampleMemory, p.Description,
		)
	}
	return nil
}

func (sh *shell) cmdProfile(args []string, w io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: profile NAME")
	}
	p, err := sh.cat.Profile(context.Background(), args[0])
	if err != nil {
		return err
	}
	sh.prof = p
	sh.drv = nil
	return nil
}

func (sh *shell) cmdOpen(args []string, w io.Writer) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: open KIND PORT [BAUD]")
	}
	baud := 115200
	if len(args) == 3 {
		v, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid baud rate %q: %w", args[2], err)
		}
		baud = v
	}
	sh.kind = args[0]
	sh.port = args[1]
	sh.cfg.Port = sh.port
	sh.cfg.BaudRate = baud
	sh.drv = nil
	return nil
}

func (sh *shell) driver() (*sump.Driver, error) {
	if sh.kind == "" {
		return nil, fmt.Errorf("no device port (use \"open\")")
	}
	if sh.drv == nil {
		sh.drv = sump.NewDriver(
			sh.prof, dialer(sh.kind, sh.port, sh.cfg.BaudRate),
			sump.WithLogger(sh.msg),
		)
	}
	return sh.drv, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func (sh *shell) cmdSet(args []string, w io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set KEY VALUE")
	}
	key, val := args[0], args[1]

	var err error
	switch key {
	case "rate":
		var v uint64
		v, err = strconv.ParseUint(val, 0, 32)
		sh.cfg.SampleRate = uint32(v)
	case "mask":
		var v uint64
		v, err = strconv.ParseUint(val, 0, 32)
		sh.cfg.EnabledChannels = uint32(v)
	case "n":
		sh.cfg.SampleCount, err = strconv.Atoi(val)
	case "ratio":
		sh.cfg.Ratio, err = strconv.ParseFloat(val, 64)
	case "rle":
		sh.cfg.RLE, err = parseBool(val)
	case "clamp":
		sh.cfg.Clamp, err = parseBool(val)
	case "trigger":
		sh.cfg.TriggerEnabled, err = parseBool(val)
	case "filter":
		sh.cfg.Filter, err = parseBool(val)
	case "ext":
		var ext bool
		ext, err = parseBool(val)
		sh.cfg.ClockSource = sump.ClockInternal
		if ext {
			sh.cfg.ClockSource = sump.ClockExternal
		}
	default:
		return fmt.Errorf("unknown configuration key %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, val, err)
	}
	return nil
}

func (sh *shell) cmdTrigger(args []string, w io.Writer) error {
	if len(args) < 3 || len(args) > 4 {
		return fmt.Errorf("usage: trigger STAGE MASK VALUE [DELAY]")
	}
	var vs [4]uint64
	for i, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid trigger argument %q: %w", arg, err)
		}
		vs[i] = v
	}
	stage := int(vs[0])
	if stage >= sh.prof.TriggerStages {
		return fmt.Errorf("invalid trigger stage %d (profile %q has %d stages)", stage, sh.prof.Name, sh.prof.TriggerStages)
	}
	for len(sh.cfg.Triggers) <= stage {
		sh.cfg.Triggers = append(sh.cfg.Triggers, sump.TriggerStage{})
	}
	sh.cfg.Triggers[stage] = sump.TriggerStage{
		Mask:  uint32(vs[1]),
		Value: uint32(vs[2]),
		Delay: uint16(vs[3]),
		Level: uint8(stage),
	}
	for i := range sh.cfg.Triggers {
		sh.cfg.Triggers[i].Start = i == len(sh.cfg.Triggers)-1
	}
	sh.cfg.TriggerEnabled = true
	return nil
}

func (sh *shell) cmdShow(args []string, w io.Writer) error {
	cfg := sh.cfg
	fmt.Fprintf(w, "profile:  %s (%s)\n", sh.prof.Name, sh.prof.Description)
	fmt.Fprintf(w, "port:     %s %s (baud=%d)\n", sh.kind, sh.port, cfg.BaudRate)
	fmt.Fprintf(w, "rate:     %d Hz (%v clock)\n", cfg.SampleRate, cfg.ClockSource)
	fmt.Fprintf(w, "mask:     0x%08x\n", cfg.EnabledChannels)
	fmt.Fprintf(w, "samples:  %d (ratio=%v, clamp=%v)\n", cfg.SampleCount, cfg.Ratio, cfg.Clamp)
	fmt.Fprintf(w, "rle:      %v\n", cfg.RLE)
	fmt.Fprintf(w, "trigger:  %v\n", cfg.TriggerEnabled)
	for i, st := range cfg.Triggers {
		fmt.Fprintf(w, "  stage %d: mask=0x%08x value=0x%08x delay=%d start=%v\n",
			i, st.Mask, st.Value, st.Delay, st.Start,
		)
	}
	return nil
}

func (sh *shell) cmdPlan(args []string, w io.Writer) error {
	plan, err := sump.NewPlan(sh.cfg, sh.prof)
	if err != nil {
		return err
	}
	flags, err := sump.BuildFlags(sh.cfg, sh.prof)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%v\nflags=0x%03x (%v)\n", plan, uint32(flags), flags)
	return nil
}

func (sh *shell) cmdID(args []string, w io.Writer) error {
	drv, err := sh.driver()
	if err != nil {
		return err
	}
	id, err := drv.Identify(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", id)
	return nil
}

func (sh *shell) cmdMeta(args []string, w io.Writer) error {
	drv, err := sh.driver()
	if err != nil {
		return err
	}
	md, err := drv.Metadata(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "name:      %s\n", md.Name)
	fmt.Fprintf(w, "fpga:      %s\n", md.FPGAVersion)
	fmt.Fprintf(w, "probes:    %d\n", md.Probes)
	fmt.Fprintf(w, "memory:    %d bytes\n", md.SampleMemory)
	fmt.Fprintf(w, "max-rate:  %d Hz\n", md.MaxSampleRate)
	fmt.Fprintf(w, "protocol:  %d\n", md.Protocol)
	return nil
}

func (sh *shell) cmdRun(args []string, w io.Writer) error {
	if len(args) > 1 {
		return fmt.Errorf("usage: run [FILE]")
	}
	drv, err := sh.driver()
	if err != nil {
		return err
	}

	res, err := drv.Acquire(context.Background(), sh.cfg)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		_, err = res.WriteTo(w)
		return err
	}

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("could not create sample dump: %w", err)
	}
	defer f.Close()

	_, err = res.WriteTo(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d samples written to %s\n", len(res.Samples), args[0])
	return f.Close()
}
