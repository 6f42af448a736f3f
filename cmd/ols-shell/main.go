// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ols-shell is an interactive shell to configure logic analyzers
// and run acquisitions.
//
// Example:
//
//	$> ols-shell
//	ols> open serial /dev/ttyACM0 115200
//	ols> id
//	1ALS
//	ols> set rate 20000000
//	ols> set mask 0xff
//	ols> plan
//	divider=4 ddr=false rle=false read=4096 delay=2048 rate=20000000Hz
//	ols> run capture.txt
//	ols> quit
package main // import "github.com/lavachemist/ols/cmd/ols-shell"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/lavachemist/ols/profiledb"
	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("ols-shell: ")
	log.SetFlags(0)

	var (
		db   = flag.String("db", os.Getenv("OLS_PROFILE_DB"), "profile catalog (driver:dsn), built-in profiles if empty")
		prof = flag.String("profile", "ols", "device profile")
	)
	flag.Parse()

	cat, err := profiledb.OpenCatalog(*db)
	if err != nil {
		log.Fatalf("could not open profile catalog: %+v", err)
	}
	defer profiledb.Close(cat)

	sh, err := newShell(cat, *prof)
	if err != nil {
		log.Fatalf("could not create shell: %+v", err)
	}

	err = loop(sh, os.Stdout)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ols-shell.history")
}

func loop(sh *shell, stdout io.Writer) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(sh.complete)

	hist := historyFile()
	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if hist == "" {
			return
		}
		f, err := os.Create(hist)
		if err != nil {
			log.Printf("could not save history: %+v", err)
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("ols> ")
		switch {
		case err == nil:
		case errors.Is(err, liner.ErrPromptAborted), errors.Is(err, io.EOF):
			fmt.Fprintln(stdout)
			return nil
		default:
			return fmt.Errorf("could not read command: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		err = sh.exec(line, stdout)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintf(stdout, "error: %+v\n", err)
		}
	}
}
