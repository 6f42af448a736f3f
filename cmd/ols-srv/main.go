// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ols-srv serves logic analyzer acquisitions over HTTP.
//
// Usage: ols-srv [OPTIONS]
//
// Example:
//
//	$> ols-srv -addr :8080 -db sqlite:/var/lib/ols/profiles.db
//	$> curl -X POST localhost:8080/acquire -d '{"profile":"ols","port":"/dev/ttyACM0","rate":1000000,"channels":255,"samples":4096,"ratio":0.5}'
package main // import "github.com/lavachemist/ols/cmd/ols-srv"

import (
	"flag"
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/lavachemist/ols/httpapi"
	"github.com/lavachemist/ols/profiledb"
	"github.com/lavachemist/ols/sump"
	"github.com/rs/zerolog"
)

func main() {
	var (
		addr    = flag.String("addr", ":8080", "[ip]:port to listen on")
		db      = flag.String("db", os.Getenv("OLS_PROFILE_DB"), "profile catalog (driver:dsn), built-in profiles if empty")
		timeout = flag.Duration("timeout", 0, "acquisition timeout (default: profile read timeout)")
		poll    = flag.Duration("poll", 50*time.Millisecond, "cancellation poll interval")
	)

	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "ols-srv").Logger()

	cat, err := profiledb.OpenCatalog(*db)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not open profile catalog")
	}
	defer profiledb.Close(cat)

	api := httpapi.New(
		chi.NewRouter(), cat, logger,
		sump.WithTimeout(*timeout),
		sump.WithPollInterval(*poll),
	)

	err = api.Start(*addr)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not serve HTTP API")
	}
}
