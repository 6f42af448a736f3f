// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ols-rc starts a TDAQ run-control process driving a logic analyzer.
//
// The device profiles are the built-in ones, unless the OLS_PROFILE_DB
// environment variable names a profile catalog as "driver:dsn", e.g.:
//
//	$> OLS_PROFILE_DB="sqlite:/var/lib/ols/profiles.db" ols-rc -id ols-rc-01
package main // import "github.com/lavachemist/ols/cmd/ols-rc"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/lavachemist/ols/profiledb"
	"github.com/lavachemist/ols/rcsrv"
)

func main() {
	log.SetPrefix("ols-rc: ")
	log.SetFlags(0)

	cmd := flags.New()

	cat, err := profiledb.OpenCatalog(os.Getenv("OLS_PROFILE_DB"))
	if err != nil {
		log.Fatalf("could not open profile catalog: %+v", err)
	}
	defer profiledb.Close(cat)

	dev := rcsrv.New(cmd.Name, cat)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/samples", dev.Samples)

	srv.RunHandle(dev.Run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
