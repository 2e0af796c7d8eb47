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

package pub

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/relaypulsar/pulsar-client-go/core/conn"
	"github.com/relaypulsar/pulsar-client-go/core/frame"
	"github.com/relaypulsar/pulsar-client-go/pkg/api"
)

// startMockBroker starts a loopback broker that performs the
// CONNECT/CONNECTED handshake, auto-answers Ping with Pong, and hands
// every other frame to handle.
func startMockBroker(t *testing.T, handle func(send func(frame.Message), msg frame.Message)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				sf := frame.NewFramedConn(c)
				defer sf.Close()
				connect, err := sf.Recv()
				if err != nil || connect.Command.GetType() != api.BaseCommand_CONNECT {
					return
				}
				_ = sf.Send(frame.Message{Command: &api.BaseCommand{
					Type:      api.BaseCommand_CONNECTED.Enum(),
					Connected: &api.CommandConnected{ServerVersion: "mock-broker"},
				}})
				for {
					msg, err := sf.Recv()
					if err != nil {
						return
					}
					if msg.Command.GetType() == api.BaseCommand_PING {
						_ = sf.Send(frame.Message{Command: &api.BaseCommand{Type: api.BaseCommand_PONG.Enum(), Pong: &api.CommandPong{}}})
						continue
					}
					if handle != nil {
						handle(func(m frame.Message) { _ = sf.Send(m) }, msg)
					}
				}
			}()
		}
	}()

	return fmt.Sprintf("pulsar://%s", ln.Addr().String())
}

func dialTestConn(t *testing.T, handle func(send func(frame.Message), msg frame.Message)) *conn.Connection {
	t.Helper()
	url := startMockBroker(t, handle)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, cerr := conn.New(ctx, url, conn.Options{})
	if cerr != nil {
		t.Fatalf("conn.New: %v", cerr)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewProducer_RegistersAgainstBroker(t *testing.T) {
	c := dialTestConn(t, func(send func(frame.Message), msg frame.Message) {
		if msg.Command.GetType() != api.BaseCommand_PRODUCER {
			return
		}
		send(frame.Message{Command: &api.BaseCommand{
			Type: api.BaseCommand_PRODUCER_SUCCESS.Enum(),
			ProducerSuccess: &api.CommandProducerSuccess{
				RequestId:    msg.Command.Producer.RequestId,
				ProducerName: "broker-assigned-1",
			},
		}})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, cerr := NewProducer(ctx, c.Sender(), "persistent://p/ns/topic", 7, nil, conn.ProducerOptions{})
	if cerr != nil {
		t.Fatalf("NewProducer: %v", cerr)
	}
	if p.ProducerName != "broker-assigned-1" {
		t.Fatalf("got producer name %q", p.ProducerName)
	}
}

func TestProducer_Send_Success(t *testing.T) {
	c := dialTestConn(t, func(send func(frame.Message), msg frame.Message) {
		switch msg.Command.GetType() {
		case api.BaseCommand_PRODUCER:
			send(frame.Message{Command: &api.BaseCommand{
				Type:            api.BaseCommand_PRODUCER_SUCCESS.Enum(),
				ProducerSuccess: &api.CommandProducerSuccess{RequestId: msg.Command.Producer.RequestId, ProducerName: "p-1"},
			}})
		case api.BaseCommand_SEND:
			send(frame.Message{Command: &api.BaseCommand{
				Type: api.BaseCommand_SEND_RECEIPT.Enum(),
				SendReceipt: &api.CommandSendReceipt{
					ProducerId: msg.Command.Send.ProducerId,
					SequenceId: msg.Command.Send.SequenceId,
				},
			}})
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, cerr := NewProducer(ctx, c.Sender(), "persistent://p/ns/topic", 7, nil, conn.ProducerOptions{})
	if cerr != nil {
		t.Fatalf("NewProducer: %v", cerr)
	}

	receipt, err := p.Send(ctx, []byte("hola mundo"), nil)
	if err != nil {
		t.Fatalf("Send() err = %v; nil expected", err)
	}
	if receipt.SequenceId != 0 {
		t.Fatalf("got sequence_id %d, want 0", receipt.SequenceId)
	}

	receipt2, err := p.Send(ctx, []byte("again"), nil)
	if err != nil {
		t.Fatalf("second Send() err = %v", err)
	}
	if receipt2.SequenceId != 1 {
		t.Fatalf("got sequence_id %d, want 1 (monotonic per producer)", receipt2.SequenceId)
	}
}

func TestProducer_Send_Error(t *testing.T) {
	c := dialTestConn(t, func(send func(frame.Message), msg frame.Message) {
		switch msg.Command.GetType() {
		case api.BaseCommand_PRODUCER:
			send(frame.Message{Command: &api.BaseCommand{
				Type:            api.BaseCommand_PRODUCER_SUCCESS.Enum(),
				ProducerSuccess: &api.CommandProducerSuccess{RequestId: msg.Command.Producer.RequestId, ProducerName: "p-1"},
			}})
		case api.BaseCommand_SEND:
			send(frame.Message{Command: &api.BaseCommand{
				Type: api.BaseCommand_SEND_ERROR.Enum(),
				SendError: &api.CommandSendError{
					ProducerId: msg.Command.Send.ProducerId,
					SequenceId: msg.Command.Send.SequenceId,
					Error:      api.ServerError_PersistenceError,
					Message:    "no me mandes esto",
				},
			}})
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, cerr := NewProducer(ctx, c.Sender(), "persistent://p/ns/topic", 7, nil, conn.ProducerOptions{})
	if cerr != nil {
		t.Fatalf("NewProducer: %v", cerr)
	}

	_, err := p.Send(ctx, []byte("hola mundo"), nil)
	if err == nil {
		t.Fatal("Send() err = nil; non-nil expected")
	}
}

func TestProducer_Send_AfterClose(t *testing.T) {
	c := dialTestConn(t, func(send func(frame.Message), msg frame.Message) {
		switch msg.Command.GetType() {
		case api.BaseCommand_PRODUCER:
			send(frame.Message{Command: &api.BaseCommand{
				Type:            api.BaseCommand_PRODUCER_SUCCESS.Enum(),
				ProducerSuccess: &api.CommandProducerSuccess{RequestId: msg.Command.Producer.RequestId, ProducerName: "p-1"},
			}})
		case api.BaseCommand_CLOSE_PRODUCER:
			send(frame.Message{Command: &api.BaseCommand{
				Type:    api.BaseCommand_SUCCESS.Enum(),
				Success: &api.CommandSuccess{RequestId: msg.Command.CloseProducer.RequestId},
			}})
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, cerr := NewProducer(ctx, c.Sender(), "persistent://p/ns/topic", 7, nil, conn.ProducerOptions{})
	if cerr != nil {
		t.Fatalf("NewProducer: %v", cerr)
	}

	select {
	case <-p.Closed():
		t.Fatal("Closed() unblocked before Close() was called")
	default:
	}

	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close() err = %v; nil expected", err)
	}

	select {
	case <-p.Closed():
	default:
		t.Fatal("Closed() still blocked after Close()")
	}

	if _, err := p.Send(ctx, []byte("too late"), nil); err != ErrClosedProducer {
		t.Fatalf("got err %v, want ErrClosedProducer", err)
	}

	// Closing twice is a no-op, not an error.
	if err := p.Close(ctx); err != nil {
		t.Fatalf("second Close() err = %v; nil expected", err)
	}
}
