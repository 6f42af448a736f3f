// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lavachemist/ols/profiledb"
	"github.com/lavachemist/ols/sump"
)

func newTestShell(t *testing.T) *shell {
	t.Helper()
	sh, err := newShell(profiledb.Builtin{}, "ols")
	if err != nil {
		t.Fatalf("could not create shell: %+v", err)
	}
	sh.msg = log.New(io.Discard, "", 0)
	return sh
}

func TestShellSession(t *testing.T) {
	sh := newTestShell(t)

	for _, tc := range []struct {
		line string
		want string
	}{
		{"open sim sim0", ""},
		{"id", "1ALS\n"},
		{"set rate 20000000", ""},
		{"set mask 0xff", ""},
		{"plan", "divider=4 ddr=false rle=false read=4096 delay=2048 rate=20000000Hz\nflags=0x038 (GROUP2_DISABLED|GROUP3_DISABLED|GROUP4_DISABLED)\n"},
		{"set n 16", ""},
		{"set rate 100000000", ""},
		{"run", "# rate=100000000 Hz channels=8 samples=16\n" +
			"00000000: ff ff ff ff ff ff ff ff\n" +
			"00000008: ff ff ff ff ff ff ff ff\n"},
	} {
		out := new(bytes.Buffer)
		err := sh.exec(tc.line, out)
		if err != nil {
			t.Fatalf("could not run %q: %+v", tc.line, err)
		}
		if got := out.String(); got != tc.want {
			t.Fatalf("invalid output for %q:\ngot= %q\nwant=%q", tc.line, got, tc.want)
		}
	}

	out := new(bytes.Buffer)
	err := sh.exec("meta", out)
	if err != nil {
		t.Fatalf("could not query metadata: %+v", err)
	}
	if !strings.Contains(out.String(), "name:      Simulated Logic Sniffer\n") {
		t.Fatalf("invalid metadata:\n%s", out.String())
	}

	err = sh.exec("quit", out)
	if !errors.Is(err, errQuit) {
		t.Fatalf("invalid quit error: %+v", err)
	}
}

func TestShellRunToFile(t *testing.T) {
	tmpdir, err := os.MkdirTemp("", "ols-shell-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpdir)

	sh := newTestShell(t)
	for _, line := range []string{
		"open sim sim0",
		"set n 8",
		"set rate 100000000",
		"set mask 0xffff",
	} {
		err := sh.exec(line, io.Discard)
		if err != nil {
			t.Fatalf("could not run %q: %+v", line, err)
		}
	}

	fname := filepath.Join(tmpdir, "capture.txt")
	out := new(bytes.Buffer)
	err = sh.exec("run "+fname, out)
	if err != nil {
		t.Fatalf("could not run acquisition: %+v", err)
	}
	if got, want := out.String(), "8 samples written to "+fname+"\n"; got != want {
		t.Fatalf("invalid output: got=%q, want=%q", got, want)
	}

	raw, err := os.ReadFile(fname)
	if err != nil {
		t.Fatalf("could not read dump: %+v", err)
	}
	if got, want := string(raw), "# rate=100000000 Hz channels=16 samples=8\n00000000: ffff ffff ffff ffff ffff ffff ffff ffff\n"; got != want {
		t.Fatalf("invalid dump:\ngot= %q\nwant=%q", got, want)
	}
}

func TestShellTrigger(t *testing.T) {
	sh := newTestShell(t)
	for _, line := range []string{
		"trigger 0 0x1 0x1",
		"trigger 1 0x2 0x0 10",
	} {
		err := sh.exec(line, io.Discard)
		if err != nil {
			t.Fatalf("could not run %q: %+v", line, err)
		}
	}

	want := []sump.TriggerStage{
		{Mask: 0x1, Value: 0x1},
		{Mask: 0x2, Value: 0x0, Delay: 10, Level: 1, Start: true},
	}
	if got := sh.cfg.Triggers; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid triggers:\ngot= %+v\nwant=%+v", got, want)
	}
	if !sh.cfg.TriggerEnabled {
		t.Fatalf("trigger not enabled")
	}
}

func TestShellErrors(t *testing.T) {
	sh := newTestShell(t)
	for _, tc := range []struct {
		line string
		want string
	}{
		{"frobnicate", `unknown command "frobnicate" (try "help")`},
		{"id", `no device port (use "open")`},
		{"run", `no device port (use "open")`},
		{"profile nope", `sump: unknown device profile "nope"`},
		{"profile", "usage: profile NAME"},
		{"open sim", "usage: open KIND PORT [BAUD]"},
		{"open serial /dev/ttyACM0 fast", `invalid baud rate "fast": strconv.Atoi: parsing "fast": invalid syntax`},
		{"set colour red", `unknown configuration key "colour"`},
		{"set rle maybe", `invalid rle value "maybe": strconv.ParseBool: parsing "maybe": invalid syntax`},
		{"set rate -1", `invalid rate value "-1": strconv.ParseUint: parsing "-1": invalid syntax`},
		{"trigger 4 0x1 0x1", `invalid trigger stage 4 (profile "ols" has 4 stages)`},
		{"trigger 0 x 0x1", `invalid trigger argument "x": strconv.ParseUint: parsing "x": invalid syntax`},
		{"set ratio 2", ""},
	} {
		t.Run(tc.line, func(t *testing.T) {
			err := sh.exec(tc.line, io.Discard)
			switch {
			case tc.want == "" && err == nil:
			case tc.want == "" && err != nil:
				t.Fatalf("could not run %q: %+v", tc.line, err)
			case err == nil:
				t.Fatalf("expected an error")
			default:
				if got := err.Error(); got != tc.want {
					t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, tc.want)
				}
			}
		})
	}

	err := sh.exec("plan", io.Discard)
	if got, want := err.Error(), "sump: invalid configuration (ratio): trigger ratio 2 outside [0,1]"; got != want {
		t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, want)
	}
}

func TestShellComplete(t *testing.T) {
	sh := newTestShell(t)
	if got, want := sh.complete("pro"), []string{"profile", "profiles"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid completion: got=%q, want=%q", got, want)
	}

	out := new(bytes.Buffer)
	err := sh.exec("help", out)
	if err != nil {
		t.Fatalf("could not run help: %+v", err)
	}
	if got, want := strings.Count(out.String(), "\n"), len(sh.cmds); got != want {
		t.Fatalf("invalid help output: %d lines, want %d", got, want)
	}
}
