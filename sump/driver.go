// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Channel is a duplex byte transport to a capture device.
//
// ReadExactly fills p, waiting at most timeout. It returns the number of
// bytes read and, when p could not be filled in time, an error wrapping
// os.ErrDeadlineExceeded.
type Channel interface {
	Write(p []byte) (int, error)
	ReadExactly(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// State is the state of the acquisition state machine.
type State int32

const (
	StateIdle State = iota
	StateConfiguring
	StateArmed
	StateAwaitingTrigger
	StateReading
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateArmed:
		return "armed"
	case StateAwaitingTrigger:
		return "awaiting-trigger"
	case StateReading:
		return "reading"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type config struct {
	msg     *log.Logger
	timeout time.Duration // overall acquisition deadline
	poll    time.Duration // cancellation poll interval
	write   time.Duration // command write timeout
}

func newConfig() config {
	return config{
		msg:   log.New(os.Stdout, "sump: ", 0),
		poll:  defaultPoll,
		write: defaultWrite,
	}
}

// Option configures a Driver.
type Option func(*config)

// WithLogger sets the logger of the driver.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithTimeout sets the deadline for device data: from the arm command to
// the last sample of an acquisition, or from a query command to its reply.
// It defaults to the profile ReadTimeout.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// WithPollInterval sets how often a blocked read checks for cancellation.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) {
		cfg.poll = d
	}
}

// WithWriteTimeout bounds each command write.
func WithWriteTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.write = d
	}
}

// Driver runs acquisitions on a capture device.
//
// A Driver owns at most one channel at a time: a channel is dialed at the
// start of each acquisition and released when it ends. Requests made while
// an acquisition is in flight fail with ErrBusy.
type Driver struct {
	prof DeviceProfile
	dial func() (Channel, error)
	cfg  config

	busy  int32
	state int32
}

// NewDriver creates a driver for the device described by prof.
// dial is called to open the channel of each acquisition.
func NewDriver(prof DeviceProfile, dial func() (Channel, error), opts ...Option) *Driver {
	drv := &Driver{
		prof: prof,
		dial: dial,
		cfg:  newConfig(),
	}
	for _, opt := range opts {
		opt(&drv.cfg)
	}
	if drv.cfg.timeout <= 0 {
		drv.cfg.timeout = prof.timeout()
	}
	if drv.cfg.poll <= 0 {
		drv.cfg.poll = defaultPoll
	}
	if drv.cfg.write <= 0 {
		drv.cfg.write = defaultWrite
	}
	return drv
}

// Profile returns the device profile of the driver.
func (drv *Driver) Profile() DeviceProfile { return drv.prof }

// State returns the state of the current (or last) acquisition.
func (drv *Driver) State() State {
	return State(atomic.LoadInt32(&drv.state))
}

func (drv *Driver) setState(s State) {
	atomic.StoreInt32(&drv.state, int32(s))
}

func (drv *Driver) lock() bool {
	return atomic.CompareAndSwapInt32(&drv.busy, 0, 1)
}

func (drv *Driver) unlock() {
	atomic.StoreInt32(&drv.busy, 0)
}

type acquisition struct {
	cfg    Config
	caps   Capabilities
	plan   Plan
	flags  Flags
	stages []TriggerStage
}

func (drv *Driver) prepare(cfg Config) (acquisition, error) {
	caps, err := drv.prof.caps()
	if err != nil {
		return acquisition{}, err
	}
	plan, err := NewPlan(cfg, drv.prof)
	if err != nil {
		return acquisition{}, err
	}
	flags, err := BuildFlags(cfg, drv.prof)
	if err != nil {
		return acquisition{}, err
	}
	return acquisition{
		cfg:    cfg,
		caps:   caps,
		plan:   plan,
		flags:  flags,
		stages: cfg.stages(),
	}, nil
}

// Acquire runs a whole acquisition and returns its result.
// A cancelled acquisition returns ErrCancelled and no result.
func (drv *Driver) Acquire(ctx context.Context, cfg Config) (Result, error) {
	acq, err := drv.prepare(cfg)
	if err != nil {
		return Result{}, err
	}
	if !drv.lock() {
		return Result{}, ErrBusy
	}
	defer drv.unlock()

	return drv.run(ctx, acq)
}

// Task is an acquisition running on its own goroutine.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	res Result
	err error
}

// Start runs an acquisition on a new goroutine.
// Configuration errors and ErrBusy are reported by Start itself.
func (drv *Driver) Start(ctx context.Context, cfg Config) (*Task, error) {
	acq, err := drv.prepare(cfg)
	if err != nil {
		return nil, err
	}
	if !drv.lock() {
		return nil, ErrBusy
	}

	ctx, cancel := context.WithCancel(ctx)
	task := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(task.done)
		defer cancel()
		defer drv.unlock()
		task.res, task.err = drv.run(ctx, acq)
	}()
	return task, nil
}

// Cancel requests the cancellation of the acquisition.
func (t *Task) Cancel() { t.cancel() }

// Done returns a channel closed when the acquisition has ended.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the acquisition has ended and returns its outcome.
func (t *Task) Wait() (Result, error) {
	<-t.done
	return t.res, t.err
}

func (drv *Driver) run(ctx context.Context, acq acquisition) (Result, error) {
	drv.setState(StateConfiguring)
	drv.cfg.msg.Printf(
		"acquisition on %q: flags=%s %v",
		drv.prof.Name, acq.flags, acq.plan,
	)

	sess, err := drv.open()
	if err != nil {
		drv.setState(StateFailed)
		return Result{}, err
	}
	defer sess.close()

	if err := ctx.Err(); err != nil {
		drv.setState(StateCancelled)
		return Result{}, ErrCancelled
	}

	err = sess.write("configure", configure(acq.caps, acq.plan, acq.flags, acq.stages))
	if err != nil {
		return Result{}, drv.fail(sess, err)
	}

	drv.setState(StateArmed)
	err = sess.write("arm", []byte{cmdRun})
	if err != nil {
		return Result{}, drv.fail(sess, err)
	}

	drv.setState(StateAwaitingTrigger)
	r := sess.reader(ctx, "await trigger", func() {
		drv.setState(StateReading)
	})
	samples, err := NewDecoder(r, acq.plan, acq.flags).Decode()
	if err != nil {
		if r.err != nil {
			err = r.err
		}
		return Result{}, drv.fail(sess, err)
	}

	drv.setState(StateCompleted)
	res := newResult(acq.plan, acq.flags, samples)
	drv.cfg.msg.Printf("acquisition on %q: %d samples at %d Hz", drv.prof.Name, len(res.Samples), res.Rate)
	return res, nil
}

// fail aborts the acquisition: a reset is sent on a best-effort basis
// and the state machine moves to its terminal state.
func (drv *Driver) fail(sess *session, err error) error {
	sess.abort()
	if errors.Is(err, ErrCancelled) {
		drv.setState(StateCancelled)
		drv.cfg.msg.Printf("acquisition on %q cancelled", drv.prof.Name)
		return ErrCancelled
	}
	drv.setState(StateFailed)
	drv.cfg.msg.Printf("acquisition on %q failed: %+v", drv.prof.Name, err)
	return err
}

// session is the exclusive use of a channel by one request.
type session struct {
	drv  *Driver
	ch   Channel
	once sync.Once
	err  error

	pending chan error // result of a write that timed out
}

var errPendingWrite = errors.New("previous write still pending")

func (drv *Driver) open() (*session, error) {
	ch, err := drv.dial()
	if err != nil {
		return nil, &ChannelError{Op: "open", Err: err}
	}
	return &session{drv: drv, ch: ch}, nil
}

// close releases the channel. It is safe to call close several times:
// the channel is closed exactly once.
func (sess *session) close() error {
	sess.once.Do(func() {
		sess.err = sess.ch.Close()
		if sess.err != nil {
			sess.drv.cfg.msg.Printf("could not close channel: %+v", sess.err)
		}
	})
	return sess.err
}

// write sends p with a bounded wait. A write that times out keeps
// running: no other write is issued on the channel until it returns.
func (sess *session) write(op string, p []byte) error {
	if sess.pending != nil {
		select {
		case <-sess.pending:
			sess.pending = nil
		default:
			return &ChannelError{Op: op, Err: errPendingWrite}
		}
	}

	errc := make(chan error, 1)
	go func() {
		n, err := sess.ch.Write(p)
		if err == nil && n != len(p) {
			err = io.ErrShortWrite
		}
		errc <- err
	}()

	timeout := time.NewTimer(sess.drv.cfg.write)
	defer timeout.Stop()

	select {
	case err := <-errc:
		if err != nil {
			return &ChannelError{Op: op, Err: err}
		}
		return nil
	case <-timeout.C:
		sess.pending = errc
		return &TimeoutError{Op: op, After: sess.drv.cfg.write}
	}
}

func (sess *session) abort() {
	var buf cmdBuffer
	buf.reset()
	err := sess.write("reset", buf.p)
	switch {
	case errors.Is(err, errPendingWrite):
		// closing the channel unblocks the stalled write.
		sess.drv.cfg.msg.Printf("could not reset device: %+v", err)
		_ = sess.close()
	case err != nil:
		sess.drv.cfg.msg.Printf("could not reset device: %+v", err)
	}
}

func (sess *session) reader(ctx context.Context, op string, first func()) *chanReader {
	return &chanReader{
		ctx:      ctx,
		ch:       sess.ch,
		op:       op,
		poll:     sess.drv.cfg.poll,
		timeout:  sess.drv.cfg.timeout,
		deadline: time.Now().Add(sess.drv.cfg.timeout),
		first:    first,
	}
}

// chanReader presents a channel as an io.Reader.
// Reads are split in poll-interval slices to observe cancellation, and
// fail once the overall deadline has passed.
type chanReader struct {
	ctx      context.Context
	ch       Channel
	op       string
	poll     time.Duration
	timeout  time.Duration
	deadline time.Time
	first    func() // called when the first byte arrives

	n   int64
	err error // terminal error
}

func (r *chanReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if r.ctx.Err() != nil {
			r.err = ErrCancelled
			return 0, r.err
		}

		left := time.Until(r.deadline)
		if left <= 0 {
			r.err = &TimeoutError{Op: r.op, After: r.timeout}
			return 0, r.err
		}
		wait := r.poll
		if left < wait {
			wait = left
		}

		n, err := r.ch.ReadExactly(p, wait)
		if n > 0 {
			if r.n == 0 && r.first != nil {
				r.first()
				r.op = "read samples"
			}
			r.n += int64(n)
		}

		switch {
		case err == nil:
			if n > 0 {
				return n, nil
			}
		case errors.Is(err, os.ErrDeadlineExceeded):
			if n > 0 {
				return n, nil
			}
		case errors.Is(err, io.EOF):
			return n, io.EOF
		default:
			r.err = &ChannelError{Op: "read", Err: err}
			if n > 0 {
				return n, nil
			}
			return 0, r.err
		}
	}
}
