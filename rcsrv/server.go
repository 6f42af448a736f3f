// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rcsrv exposes a capture device as a tdaq run-control process.
//
// The process answers the /config, /init, /reset, /start, /stop and /quit
// commands and publishes every acquisition on its /samples output.
// While running, acquisitions are chained until /stop.
package rcsrv // import "github.com/lavachemist/ols/rcsrv"

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/go-daq/tdaq"
	tlog "github.com/go-daq/tdaq/log"
	"github.com/lavachemist/ols/profiledb"
	"github.com/lavachemist/ols/sump"
	"github.com/lavachemist/ols/transport"
)

const deviceID = "1ALS"

// Server drives one capture device.
type Server struct {
	name string
	cat  profiledb.Catalog
	opts []sump.Option

	dial func(kind, name string, baud int) func() (sump.Channel, error)

	mu   sync.Mutex
	req  Request
	drv  *sump.Driver
	n    int // acquisitions published since /start
	data chan []byte
}

// New creates a run-control server named name, resolving device profiles
// with cat. A nil catalog selects the built-in profiles.
func New(name string, cat profiledb.Catalog, opts ...sump.Option) *Server {
	if cat == nil {
		cat = profiledb.Builtin{}
	}
	return &Server{
		name: name,
		cat:  cat,
		opts: opts,
		dial: transport.Dialer,
		data: make(chan []byte, 1024),
	}
}

// msgWriter forwards driver logs to a tdaq message stream.
type msgWriter struct {
	msg tlog.MsgStream
}

func (w msgWriter) Write(p []byte) (int, error) {
	w.msg.Debugf("%s", p)
	return len(p), nil
}

func (srv *Server) driver() (*sump.Driver, Request, error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.drv == nil {
		return nil, srv.req, fmt.Errorf("rcsrv: %s not configured", srv.name)
	}
	return srv.drv, srv.req, nil
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	var r Request
	err := r.UnmarshalTDAQ(req.Body)
	if err != nil {
		ctx.Msg.Errorf("could not decode /config request: %+v", err)
		return fmt.Errorf("could not decode /config request: %w", err)
	}

	prof, err := srv.cat.Profile(ctx.Ctx, r.Profile)
	if err != nil {
		ctx.Msg.Errorf("could not find profile %q: %+v", r.Profile, err)
		return fmt.Errorf("could not find profile %q: %w", r.Profile, err)
	}

	plan, err := sump.NewPlan(r.Config, prof)
	if err != nil {
		ctx.Msg.Errorf("invalid configuration for %q: %+v", prof.Name, err)
		return fmt.Errorf("invalid configuration for %q: %w", prof.Name, err)
	}
	ctx.Msg.Infof("device %q on %s:%q: %v", prof.Name, r.Transport, r.Config.Port, plan)

	opts := append([]sump.Option{
		sump.WithLogger(log.New(msgWriter{ctx.Msg}, "", 0)),
	}, srv.opts...)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.req = r
	srv.drv = sump.NewDriver(prof, srv.dial(r.Transport, r.Config.Port, r.Config.BaudRate), opts...)

	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	drv, _, err := srv.driver()
	if err != nil {
		return err
	}

	id, err := drv.Identify(ctx.Ctx)
	if err != nil {
		ctx.Msg.Errorf("could not identify device: %+v", err)
		return fmt.Errorf("could not identify device: %w", err)
	}
	if id != deviceID {
		ctx.Msg.Errorf("unexpected device identifier %q", id)
		return fmt.Errorf("unexpected device identifier %q (want %q)", id, deviceID)
	}

	md, err := drv.Metadata(ctx.Ctx)
	if err != nil {
		// older SUMP firmwares do not implement the metadata command.
		ctx.Msg.Warnf("could not retrieve device metadata: %+v", err)
		return nil
	}
	ctx.Msg.Infof("device: %q (fpga=%q, probes=%d, memory=%d bytes, max-rate=%d Hz)",
		md.Name, md.FPGAVersion, md.Probes, md.SampleMemory, md.MaxSampleRate,
	)
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.drv = nil
	srv.req = Request{}
	srv.data = make(chan []byte, 1024)
	srv.n = 0
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	_, _, err := srv.driver()
	if err != nil {
		return err
	}
	srv.mu.Lock()
	srv.n = 0
	srv.mu.Unlock()
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	n := srv.n
	srv.mu.Unlock()
	ctx.Msg.Debugf("received /stop command... -> n=%d", n)
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

// Samples is the /samples output handler.
func (srv *Server) Samples(ctx tdaq.Context, dst *tdaq.Frame) error {
	srv.mu.Lock()
	data := srv.data
	srv.mu.Unlock()

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case body := <-data:
		dst.Body = body
	}
	return nil
}

// Run chains acquisitions until ctx is done.
// Acquisitions that time out waiting for the trigger are skipped.
func (srv *Server) Run(ctx tdaq.Context) error {
	drv, req, err := srv.driver()
	if err != nil {
		return err
	}

	for {
		res, err := srv.acquire(ctx.Ctx, drv, req.Config)
		switch {
		case err == nil:
		case errors.Is(err, sump.ErrCancelled):
			return nil
		case isTimeout(err):
			ctx.Msg.Warnf("acquisition skipped: %+v", err)
			continue
		default:
			ctx.Msg.Errorf("acquisition failed: %+v", err)
			return fmt.Errorf("could not acquire samples: %w", err)
		}

		body, err := EncodeResult(res)
		if err != nil {
			return err
		}

		srv.mu.Lock()
		select {
		case srv.data <- body:
			srv.n++
		default:
			ctx.Msg.Warnf("output queue full: dropping %d samples", len(res.Samples))
		}
		srv.mu.Unlock()
	}
}

func (srv *Server) acquire(ctx context.Context, drv *sump.Driver, cfg sump.Config) (sump.Result, error) {
	task, err := drv.Start(ctx, cfg)
	if err != nil {
		return sump.Result{}, err
	}

	select {
	case <-ctx.Done():
		task.Cancel()
		_, err := task.Wait()
		if err == nil {
			err = sump.ErrCancelled
		}
		return sump.Result{}, err
	case <-task.Done():
		return task.Wait()
	}
}

func isTimeout(err error) bool {
	var terr *sump.TimeoutError
	return errors.As(err, &terr)
}

// Published returns the number of acquisitions published since /start.
func (srv *Server) Published() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.n
}
