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
	"io"
	"testing"
	"time"

	"github.com/relaypulsar/pulsar-client-go/core/frame"
	"github.com/relaypulsar/pulsar-client-go/pkg/api"
)

// fakeInbound lets a test hand-feed decoded frames (or errors) to a
// receiver without a real socket.
type fakeInbound struct {
	ch chan inboundResult
}

func newFakeInbound() *fakeInbound {
	return &fakeInbound{ch: make(chan inboundResult, 8)}
}

func (f *fakeInbound) Recv() (frame.Message, error) {
	r := <-f.ch
	return r.msg, r.err
}

func (f *fakeInbound) push(m frame.Message) { f.ch <- inboundResult{msg: m} }
func (f *fakeInbound) pushErr(err error)    { f.ch <- inboundResult{err: err} }

// testReceiver bundles a running receiver with the queues a test needs
// to drive it and a teardown func.
type testReceiver struct {
	in            *fakeInbound
	registrations *unboundedQueue[frame.Register]
	outbound      *unboundedQueue[frame.Message]
	sharedErr     SharedError
	shutdown      chan struct{}
	exited        chan struct{}
	closed        chan struct{}
}

func startTestReceiver(t *testing.T) *testReceiver {
	t.Helper()
	tr := &testReceiver{
		in:            newFakeInbound(),
		registrations: newUnboundedQueue[frame.Register](),
		outbound:      newUnboundedQueue[frame.Message](),
		sharedErr:     NewSharedError(),
		shutdown:      make(chan struct{}),
		exited:        make(chan struct{}),
		closed:        make(chan struct{}),
	}
	var closeOnce, exitOnce chan struct{} = tr.closed, tr.exited
	closeConn := func() error { closeSafely(closeOnce); return nil }
	onExit := func() { closeSafely(exitOnce) }

	r := newReceiver(tr.in, tr.outbound, tr.registrations, tr.sharedErr, tr.shutdown, closeConn, onExit)
	go r.run()
	return tr
}

func closeSafely(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

const syncDelay = 50 * time.Millisecond

func TestReceiver_RequestResponse_HappyPath(t *testing.T) {
	tr := startTestReceiver(t)

	key := frame.RequestIDKey(7)
	resolver := make(chan frame.Message, 1)
	tr.registrations.Send(frame.RegisterRequest{Key: key, Resolver: resolver})
	time.Sleep(syncDelay)

	tr.in.push(frame.Message{Command: &api.BaseCommand{
		Type:    api.BaseCommand_SUCCESS.Enum(),
		Success: &api.CommandSuccess{RequestId: 7},
	}})

	select {
	case m := <-resolver:
		if m.Command.GetType() != api.BaseCommand_SUCCESS {
			t.Fatalf("got %v, want SUCCESS", m.Command.GetType())
		}
	case <-time.After(time.Second):
		t.Fatal("resolver never fired")
	}
}

func TestReceiver_OutOfOrder_StashThenRegister(t *testing.T) {
	tr := startTestReceiver(t)

	key := frame.RequestIDKey(9)
	// Response arrives before anyone registered for it.
	tr.in.push(frame.Message{Command: &api.BaseCommand{
		Type:    api.BaseCommand_SUCCESS.Enum(),
		Success: &api.CommandSuccess{RequestId: 9},
	}})
	time.Sleep(syncDelay)

	resolver := make(chan frame.Message, 1)
	tr.registrations.Send(frame.RegisterRequest{Key: key, Resolver: resolver})

	select {
	case m := <-resolver:
		if m.Command.GetType() != api.BaseCommand_SUCCESS {
			t.Fatalf("got %v, want SUCCESS", m.Command.GetType())
		}
	case <-time.After(time.Second):
		t.Fatal("stashed response was never delivered to the late registration")
	}
}

func TestReceiver_PingAnsweredWithPong(t *testing.T) {
	tr := startTestReceiver(t)

	tr.in.push(frame.Message{Command: &api.BaseCommand{Type: api.BaseCommand_PING.Enum(), Ping: &api.CommandPing{}}})

	select {
	case m := <-tr.outbound.Out():
		if m.Command.GetType() != api.BaseCommand_PONG {
			t.Fatalf("outbound got %v, want PONG", m.Command.GetType())
		}
	case <-time.After(time.Second):
		t.Fatal("no pong was enqueued in response to ping")
	}
}

func TestReceiver_PongCompletesPingRegistration(t *testing.T) {
	tr := startTestReceiver(t)

	resolver := make(chan struct{}, 1)
	tr.registrations.Send(frame.RegisterPing{Resolver: resolver})
	time.Sleep(syncDelay)

	tr.in.push(frame.Message{Command: &api.BaseCommand{Type: api.BaseCommand_PONG.Enum(), Pong: &api.CommandPong{}}})

	select {
	case <-resolver:
	case <-time.After(time.Second):
		t.Fatal("ping registration was never completed by the pong")
	}
}

func TestReceiver_ConsumerDeliveryRouting(t *testing.T) {
	tr := startTestReceiver(t)

	delivery := make(chan frame.Message, 1)
	tr.registrations.Send(frame.RegisterConsumer{ConsumerID: 55, Resolver: delivery})
	time.Sleep(syncDelay)

	tr.in.push(frame.Message{Command: &api.BaseCommand{
		Type:    api.BaseCommand_MESSAGE.Enum(),
		Message: &api.CommandMessage{ConsumerId: 55},
	}})

	select {
	case m := <-delivery:
		if m.Command.Message.ConsumerId != 55 {
			t.Fatalf("delivered to wrong consumer")
		}
	case <-time.After(time.Second):
		t.Fatal("delivery never reached the registered consumer channel")
	}

	// A delivery for an unknown consumer is dropped, not delivered and
	// not fatal to the receiver.
	tr.in.push(frame.Message{Command: &api.BaseCommand{
		Type:    api.BaseCommand_MESSAGE.Enum(),
		Message: &api.CommandMessage{ConsumerId: 999},
	}})
	time.Sleep(syncDelay)
	if tr.sharedErr.IsSet() {
		t.Fatalf("unroutable delivery should be dropped, not treated as a connection error")
	}
}

func TestReceiver_TransportError_LatchesSharedErrorAndExits(t *testing.T) {
	tr := startTestReceiver(t)

	tr.in.pushErr(io.ErrUnexpectedEOF)

	select {
	case <-tr.exited:
	case <-time.After(time.Second):
		t.Fatal("receiver never exited after a transport error")
	}

	if !tr.sharedErr.IsSet() {
		t.Fatalf("expected shared error to be latched")
	}
	cerr := tr.sharedErr.Take()
	if cerr.Kind != IoKind {
		t.Fatalf("got error kind %v, want IoKind", cerr.Kind)
	}
}

func TestReceiver_Shutdown_ExitsWithoutError(t *testing.T) {
	tr := startTestReceiver(t)

	close(tr.shutdown)

	select {
	case <-tr.exited:
	case <-time.After(time.Second):
		t.Fatal("receiver never exited after shutdown")
	}

	if tr.sharedErr.IsSet() {
		t.Fatalf("orderly shutdown should not latch a shared error")
	}
}
