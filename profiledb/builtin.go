// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package profiledb

import (
	"context"
	"fmt"
	"strings"

	"github.com/lavachemist/ols/sump"
)

// Catalog is a source of device profiles.
type Catalog interface {
	Profile(ctx context.Context, name string) (sump.DeviceProfile, error)
	Profiles(ctx context.Context) ([]sump.DeviceProfile, error)
}

// Builtin is the catalog of the device profiles compiled into package sump.
type Builtin struct{}

func (Builtin) Profile(ctx context.Context, name string) (sump.DeviceProfile, error) {
	return sump.LookupProfile(name)
}

func (Builtin) Profiles(ctx context.Context) ([]sump.DeviceProfile, error) {
	names := sump.ProfileNames()
	ps := make([]sump.DeviceProfile, 0, len(names))
	for _, name := range names {
		p, err := sump.LookupProfile(name)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return ps, nil
}

// OpenCatalog opens the catalog described by src: the built-in profiles
// when src is empty, a database when src is "driver:dsn", e.g.
// "sqlite:/var/lib/ols/profiles.db" or "mysql:user:pass@tcp(host)/ols".
func OpenCatalog(src string) (Catalog, error) {
	if src == "" {
		return Builtin{}, nil
	}
	i := strings.Index(src, ":")
	if i <= 0 {
		return nil, fmt.Errorf("profiledb: invalid catalog %q (want driver:dsn)", src)
	}
	db, err := Open(src[:i], src[i+1:])
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Close closes cat if it is backed by a database.
func Close(cat Catalog) error {
	if db, ok := cat.(*DB); ok {
		return db.Close()
	}
	return nil
}

var (
	_ Catalog = (*DB)(nil)
	_ Catalog = Builtin{}
)
