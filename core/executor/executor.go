// Copyright 2018 Comcast Cable Communications Management, LLC
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package executor defines the capability set the connection core needs
// from its host async runtime: spawning a task, spawning a blocking job,
// and constructing interval/delay sources. Implementers should prefer
// this single abstraction over per-runtime conditional compilation —
// Go has one runtime, so GoroutineExecutor is usually all that's needed,
// but the seam lets tests substitute a deterministic fake and lets a
// caller bound how many OS threads blocking work (like DNS lookups) may
// consume concurrently.
package executor

import (
	"sync"
	"time"
)

// Kind discriminates the host runtime. The connection core's bootstrap
// does not consult it: this module only ships one TCP/TLS backend (the
// standard library's net/net.Conn), and KindGoroutine is the only value
// anything constructs, but the
// discriminant is kept so a future alternate backend (e.g. one built on
// an io_uring-based runtime) has somewhere to plug in without changing
// the Executor interface.
type Kind int

const (
	KindGoroutine Kind = iota
)

// Ticker is satisfied by time.Ticker; abstracted so tests can substitute
// a manually-advanced fake.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer is satisfied by time.Timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Executor is the capability set the connection core requires of its
// host runtime.
type Executor interface {
	// Spawn runs f on its own goroutine. Returns an error only if the
	// executor refuses to schedule new work (e.g. it is shutting down).
	Spawn(f func()) error

	// SpawnBlocking runs f on a goroutine drawn from a bounded pool
	// sized for blocking work (DNS lookups, file I/O), and returns a
	// channel that receives f's result exactly once.
	SpawnBlocking(f func() interface{}) <-chan interface{}

	NewTicker(d time.Duration) Ticker
	NewTimer(d time.Duration) Timer

	Kind() Kind
}

// GoroutineExecutor is the default Executor: Spawn is a bare `go`;
// SpawnBlocking is backed by a bounded worker pool so that, e.g., a burst
// of concurrent Connection.New calls doesn't spin up an unbounded number
// of OS threads just to resolve DNS.
type GoroutineExecutor struct {
	blocking chan func()
	once     sync.Once
	workers  int
}

// NewGoroutineExecutor returns a ready-to-use GoroutineExecutor. workers
// bounds the number of concurrently-running SpawnBlocking jobs; a value
// <= 0 defaults to 8.
func NewGoroutineExecutor(workers int) *GoroutineExecutor {
	if workers <= 0 {
		workers = 8
	}
	e := &GoroutineExecutor{
		blocking: make(chan func()),
		workers:  workers,
	}
	for i := 0; i < workers; i++ {
		go e.blockingWorker()
	}
	return e
}

func (e *GoroutineExecutor) blockingWorker() {
	for job := range e.blocking {
		job()
	}
}

func (e *GoroutineExecutor) Spawn(f func()) error {
	go f()
	return nil
}

func (e *GoroutineExecutor) SpawnBlocking(f func() interface{}) <-chan interface{} {
	result := make(chan interface{}, 1)
	e.blocking <- func() {
		result <- f()
	}
	return result
}

func (e *GoroutineExecutor) NewTicker(d time.Duration) Ticker {
	return tickerAdapter{time.NewTicker(d)}
}

func (e *GoroutineExecutor) NewTimer(d time.Duration) Timer {
	return timerAdapter{time.NewTimer(d)}
}

func (e *GoroutineExecutor) Kind() Kind {
	return KindGoroutine
}

type tickerAdapter struct{ t *time.Ticker }

func (a tickerAdapter) C() <-chan time.Time { return a.t.C }
func (a tickerAdapter) Stop()               { a.t.Stop() }

type timerAdapter struct{ t *time.Timer }

func (a timerAdapter) C() <-chan time.Time { return a.t.C }
func (a timerAdapter) Stop() bool          { return a.t.Stop() }
