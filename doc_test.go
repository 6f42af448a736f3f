// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ols

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"
)

func TestVersionOf(t *testing.T) {
	for _, tc := range []struct {
		name    string
		info    *debug.BuildInfo
		version string
		sum     string
	}{
		{name: "nil"},
		{
			name: "main",
			info: &debug.BuildInfo{
				Main: debug.Module{Path: modulePath, Version: "v0.3.0", Sum: "h1:main"},
			},
			version: "v0.3.0",
			sum:     "h1:main",
		},
		{
			name: "dep",
			info: &debug.BuildInfo{
				Main: debug.Module{Path: "example.com/daq"},
				Deps: []*debug.Module{
					{Path: "golang.org/x/sync", Version: "v0.1.0"},
					{Path: modulePath, Version: "v0.2.1", Sum: "h1:dep"},
				},
			},
			version: "v0.2.1",
			sum:     "h1:dep",
		},
		{
			name: "replace-path-version",
			info: &debug.BuildInfo{
				Deps: []*debug.Module{{
					Path:    modulePath,
					Version: "v0.2.1",
					Replace: &debug.Module{Path: "example.com/ols", Version: "v0.2.2", Sum: "h1:fork"},
				}},
			},
			version: "example.com/ols v0.2.2",
			sum:     "h1:fork",
		},
		{
			name: "replace-version",
			info: &debug.BuildInfo{
				Deps: []*debug.Module{{
					Path:    modulePath,
					Version: "v0.2.1",
					Replace: &debug.Module{Version: "v0.2.3", Sum: "h1:v3"},
				}},
			},
			version: "v0.2.3",
			sum:     "h1:v3",
		},
		{
			name: "replace-local",
			info: &debug.BuildInfo{
				Deps: []*debug.Module{{
					Path:    modulePath,
					Version: "v0.2.1",
					Replace: &debug.Module{Path: "../ols"},
				}},
			},
			version: "../ols",
		},
		{
			name: "missing",
			info: &debug.BuildInfo{
				Deps: []*debug.Module{{Path: "golang.org/x/sync", Version: "v0.1.0"}},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			version, sum := versionOf(tc.info)
			if version != tc.version || sum != tc.sum {
				t.Fatalf("invalid version: got=(%q, %q), want=(%q, %q)", version, sum, tc.version, tc.sum)
			}
		})
	}
}

const licenseHeader = `// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
`

func TestLicenseHeader(t *testing.T) {
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != "." && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		var (
			sc   = bufio.NewScanner(f)
			head strings.Builder
		)
		for i := 0; i < 3 && sc.Scan(); i++ {
			head.WriteString(sc.Text() + "\n")
		}
		if got := head.String(); got != licenseHeader {
			t.Errorf("%s: invalid license header:\n%s", path, got)
		}
		return sc.Err()
	})
	if err != nil {
		t.Fatalf("could not walk module: %+v", err)
	}

	_, err = os.Stat("LICENSE")
	if err != nil {
		t.Fatalf("missing LICENSE file: %+v", err)
	}
}
