// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

import (
	"bufio"
	"fmt"
	"io"
)

const dumpCols = 8

// WriteTo writes a textual hex dump of the result to w:
// a header line followed by the samples, dumpCols per line, each line
// prefixed with the index of its first sample.
func (res Result) WriteTo(w io.Writer) (int64, error) {
	var (
		bw = bufio.NewWriter(w)
		cw = &countWriter{w: bw}
	)

	width := (res.Channels + 3) / 4
	if width == 0 {
		width = 1
	}

	fmt.Fprintf(cw, "# rate=%d Hz channels=%d samples=%d\n", res.Rate, res.Channels, len(res.Samples))
	for i, v := range res.Samples {
		if i%dumpCols == 0 {
			fmt.Fprintf(cw, "%08x:", i)
		}
		fmt.Fprintf(cw, " %0*x", width, v)
		if i%dumpCols == dumpCols-1 || i == len(res.Samples)-1 {
			fmt.Fprintf(cw, "\n")
		}
	}

	if cw.err != nil {
		return cw.n, fmt.Errorf("sump: could not write sample dump: %w", cw.err)
	}
	err := bw.Flush()
	if err != nil {
		return cw.n, fmt.Errorf("sump: could not flush sample dump: %w", err)
	}
	return cw.n, nil
}

type countWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *countWriter) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	cw.err = err
	return n, err
}
