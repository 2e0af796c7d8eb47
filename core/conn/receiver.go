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

package conn

import (
	"github.com/relaypulsar/pulsar-client-go/core/frame"
	"github.com/relaypulsar/pulsar-client-go/pkg/api"
	"github.com/relaypulsar/pulsar-client-go/pkg/log"
)

// Inbound is the read half of a framed connection. *frame.FramedConn
// satisfies it; tests substitute a fake to drive the Receiver without a
// real socket.
type Inbound interface {
	Recv() (frame.Message, error)
}

// inboundResult is what the background reader goroutine hands the
// Receiver loop: exactly one decoded frame, or the error that ended the
// stream.
type inboundResult struct {
	msg frame.Message
	err error
}

// receiver is the single task that owns the demultiplexing tables: every
// mutation happens on its goroutine, so no table needs a mutex. It
// mirrors the Rust connection core's Receiver future — translated from a
// poll loop into a select loop — documented in spec.md section 4.3.
type receiver struct {
	in Inbound
	// outbound is shared with ConnectionSender: per spec.md section 4.3's
	// edge policy, "outbound pong emission uses the unbounded outbound
	// queue", so a Ping is answered by pushing straight onto the same
	// FIFO a caller's Send/Subscribe/etc. frames go through, rather than
	// through a side channel.
	outbound *unboundedQueue[frame.Message]

	registrations *unboundedQueue[frame.Register]

	sharedErr SharedError
	shutdown  <-chan struct{}

	closeConn func() error
	// onExit is called exactly once, as run returns by any path. It is
	// how ConnectionSender learns "no more responses will ever arrive" —
	// the Go stand-in for the Rust original's single-shot resolvers being
	// implicitly cancelled when their Sender (owned by a now-dead
	// Receiver) is dropped.
	onExit func()

	pendingRequests  map[frame.RequestKey]chan frame.Message
	receivedMessages map[frame.RequestKey]frame.Message
	consumers        map[uint64]chan frame.Message
	ping             chan struct{}
}

// newReceiver constructs a receiver sharing outbound and registrations
// with the ConnectionSender the same bootstrap call constructs.
func newReceiver(in Inbound, outbound *unboundedQueue[frame.Message], registrations *unboundedQueue[frame.Register], sharedErr SharedError, shutdown <-chan struct{}, closeConn func() error, onExit func()) *receiver {
	return &receiver{
		in:               in,
		outbound:         outbound,
		registrations:    registrations,
		sharedErr:        sharedErr,
		shutdown:         shutdown,
		closeConn:        closeConn,
		onExit:           onExit,
		pendingRequests:  make(map[frame.RequestKey]chan frame.Message),
		receivedMessages: make(map[frame.RequestKey]frame.Message),
		consumers:        make(map[uint64]chan frame.Message),
	}
}

// run drives the receiver until shutdown is signaled or the connection
// dies. It is meant to be the body of the goroutine the Connection
// bootstrap spawns via the Executor.
//
// Each iteration enforces the same precedence the Rust poll loop used:
//  1. has shutdown fired? exit immediately, no error latched.
//  2. drain every registration currently queued, non-blocking.
//  3. drain every inbound frame currently available, non-blocking.
//  4. nothing left to do without blocking: block on whichever of
//     shutdown/registrations/inbound is ready first.
//
// The inbound side is a channel fed by a background goroutine doing the
// actual blocking net.Conn reads, since Go's blocking I/O can't otherwise
// take part in a select alongside the other two sources.
func (r *receiver) run() {
	defer r.closeConn()
	if r.onExit != nil {
		defer r.onExit()
	}

	inboundCh := make(chan inboundResult)
	readerDone := make(chan struct{})
	defer close(readerDone)

	go func() {
		for {
			msg, err := r.in.Recv()
			select {
			case inboundCh <- inboundResult{msg: msg, err: err}:
			case <-readerDone:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.shutdown:
			return
		default:
		}

		for drained := true; drained; {
			select {
			case reg, ok := <-r.registrations.Out():
				if !ok {
					r.sharedErr.Set(errDisconnected())
					return
				}
				r.handleRegister(reg)
			default:
				drained = false
			}
		}

		for drained := true; drained; {
			select {
			case res, ok := <-inboundCh:
				if !ok {
					r.sharedErr.Set(errDisconnected())
					return
				}
				if res.err != nil {
					r.sharedErr.Set(errIO(res.err))
					return
				}
				if !r.handleInbound(res.msg) {
					return
				}
			default:
				drained = false
			}
		}

		select {
		case <-r.shutdown:
			return
		case reg, ok := <-r.registrations.Out():
			if !ok {
				r.sharedErr.Set(errDisconnected())
				return
			}
			r.handleRegister(reg)
		case res, ok := <-inboundCh:
			if !ok {
				r.sharedErr.Set(errDisconnected())
				return
			}
			if res.err != nil {
				r.sharedErr.Set(errIO(res.err))
				return
			}
			if !r.handleInbound(res.msg) {
				return
			}
		}
	}
}

// handleRegister installs a waiter, or immediately resolves it from the
// stash if the response it's waiting for already arrived out of order.
func (r *receiver) handleRegister(reg frame.Register) {
	switch v := reg.(type) {
	case frame.RegisterRequest:
		if stashed, ok := r.receivedMessages[v.Key]; ok {
			delete(r.receivedMessages, v.Key)
			trySendMessage(v.Resolver, stashed)
			return
		}
		r.pendingRequests[v.Key] = v.Resolver

	case frame.RegisterConsumer:
		// A later Subscribe's RegisterConsumer always overwrites whatever
		// was there; spec.md section 9 leaves consumer-id reuse
		// unspecified beyond "last writer wins", which is what a plain
		// map assignment already gives us.
		r.consumers[v.ConsumerID] = v.Resolver

	case frame.RegisterPing:
		// Only one ping can be outstanding at a time in this client, so
		// installing a new resolver simply replaces the old one; an
		// abandoned previous resolver is not an error (spec.md section
		// 4.4, "dropped resolvers").
		r.ping = v.Resolver

	default:
		log.Warnf("receiver: unknown register variant %T", reg)
	}
}

// handleInbound routes one decoded frame. It returns false if the
// connection should be torn down (a broker-level Ping/Pong mismatch is
// not such a condition; only stream/codec failures are, and those are
// handled by the caller before handleInbound is reached).
func (r *receiver) handleInbound(msg frame.Message) bool {
	if msg.Command == nil {
		log.Warnf("receiver: dropping frame with no command")
		return true
	}

	switch msg.Command.GetType() {
	case api.BaseCommand_PING:
		// Send failures are ignored here; the Writer will observe them on
		// its next write and latch the shared error itself.
		r.outbound.Send(pongMessage())
		return true

	case api.BaseCommand_PONG:
		if r.ping != nil {
			trySendStruct(r.ping)
			r.ping = nil
		}
		return true
	}

	key, ok := msg.RequestKey()
	if !ok {
		log.Warnf("receiver: dropping unroutable frame %v", msg)
		return true
	}

	switch key.Kind {
	case frame.RequestKeyConsumer:
		ch, ok := r.consumers[key.ConsumerID]
		if !ok {
			log.Debugf("receiver: delivery for unknown consumer %d, dropping", key.ConsumerID)
			return true
		}
		trySendMessage(ch, msg)

	default:
		if resolver, ok := r.pendingRequests[key]; ok {
			delete(r.pendingRequests, key)
			trySendMessage(resolver, msg)
			return true
		}
		// No one has registered for this key yet: a Register racing with
		// its own response. Stash it so the eventual RegisterRequest can
		// pick it straight up, per spec.md section 4.4.
		r.receivedMessages[key] = msg
	}

	return true
}

func trySendMessage(ch chan frame.Message, msg frame.Message) {
	if ch == nil {
		return
	}
	select {
	case ch <- msg:
	default:
		log.Warnf("receiver: resolver for %v was not ready to receive, dropping", msg)
	}
}

func trySendStruct(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}
