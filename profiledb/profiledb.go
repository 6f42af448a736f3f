// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package profiledb reads capture device profiles from a catalog database.
//
// The catalog is a single table, created by Schema.
// Catalogs can be served by MySQL (driver "mysql") or SQLite (driver "sqlite").
package profiledb // import "github.com/lavachemist/ols/profiledb"

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/lavachemist/ols/sump"
	_ "modernc.org/sqlite"
)

const queryTimeout = 5 * time.Second

// Schema creates the profiles table.
// The read timeout is stored in milliseconds.
const Schema = `CREATE TABLE profiles (
	name           VARCHAR(64) PRIMARY KEY,
	description    TEXT,
	firmware       VARCHAR(16),
	clock_speed    INTEGER,
	channel_groups INTEGER,
	sample_memory  INTEGER,
	trigger_stages INTEGER,
	rle            BOOLEAN,
	ddr            BOOLEAN,
	read_timeout   INTEGER
)`

const profileColumns = `name, description, firmware, clock_speed, channel_groups,
	sample_memory, trigger_stages, rle, ddr, read_timeout`

// DB is a read-only view of a profile catalog.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens the catalog at dsn with the named database/sql driver.
func Open(driver, dsn string) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("profiledb: could not open %s db: %w", driver, err)
	}

	err = ping(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("profiledb: could not ping %s db: %w", driver, err)
	}

	return &DB{db: db, name: driver}, nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Profile returns the catalog entry with the given name.
func (db *DB) Profile(ctx context.Context, name string) (sump.DeviceProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE name=?",
		name,
	)
	if err != nil {
		return sump.DeviceProfile{}, fmt.Errorf("profiledb: could not query profile %q: %w", name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		err = rows.Err()
		if err == nil {
			err = sql.ErrNoRows
		}
		return sump.DeviceProfile{}, fmt.Errorf("profiledb: unknown device profile %q: %w", name, err)
	}

	p, err := scan(rows)
	if err != nil {
		return p, fmt.Errorf("profiledb: could not scan profile %q: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return p, fmt.Errorf("profiledb: context error while retrieving profile %q: %w", name, err)
	}

	return p, nil
}

// Profiles returns all catalog entries, ordered by name.
func (db *DB) Profiles(ctx context.Context) ([]sump.DeviceProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT "+profileColumns+" FROM profiles ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("profiledb: could not query profiles: %w", err)
	}
	defer rows.Close()

	var ps []sump.DeviceProfile
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return ps, fmt.Errorf("profiledb: could not scan row %d: %w", len(ps), err)
		}
		ps = append(ps, p)
	}

	if err := rows.Err(); err != nil {
		return ps, fmt.Errorf("profiledb: could not scan db for profiles: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return ps, fmt.Errorf("profiledb: context error while retrieving profiles: %w", err)
	}

	return ps, nil
}

func scan(rows *sql.Rows) (sump.DeviceProfile, error) {
	var (
		p        sump.DeviceProfile
		firmware string
		timeout  int64
	)
	err := rows.Scan(
		&p.Name, &p.Description, &firmware,
		&p.ClockSpeed, &p.Groups, &p.SampleMemory, &p.TriggerStages,
		&p.SupportsRLE, &p.SupportsDDR, &timeout,
	)
	if err != nil {
		return p, err
	}
	p.Firmware = sump.Firmware(firmware)
	p.ReadTimeout = time.Duration(timeout) * time.Millisecond

	if _, ok := sump.Firmwares[p.Firmware]; !ok {
		return p, fmt.Errorf("profile %q has unknown firmware %q", p.Name, firmware)
	}
	return p, nil
}

// IsNotFound reports whether err denotes a missing catalog entry,
// from a database or from the built-in profiles.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, sump.ErrUnknownProfile)
}
