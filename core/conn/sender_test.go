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
	"context"
	"testing"
	"time"

	"github.com/relaypulsar/pulsar-client-go/core/frame"
	"github.com/relaypulsar/pulsar-client-go/pkg/api"
)

// newTestSender wires a receiver+writer pair over the client side of a
// mock broker pipe, the same plumbing conn.New performs after its dial +
// handshake, and returns the resulting ConnectionSender plus the shared
// done channel tests can wait on.
func newTestSender(t *testing.T, handle func(send func(frame.Message), msg frame.Message)) (ConnectionSender, <-chan struct{}) {
	t.Helper()
	client := newMockBroker(t, handle)
	framed := frame.NewFramedConn(client)

	if err := framed.Send(frame.Message{Command: &api.BaseCommand{Type: api.BaseCommand_CONNECT.Enum(), Connect: &api.CommandConnect{ClientVersion: "test"}}}); err != nil {
		t.Fatalf("handshake send: %v", err)
	}
	if _, err := framed.Recv(); err != nil {
		t.Fatalf("handshake recv: %v", err)
	}

	outbound := newUnboundedQueue[frame.Message]()
	registrations := newUnboundedQueue[frame.Register]()
	sharedErr := NewSharedError()
	shutdown := make(chan struct{})
	done := make(chan struct{})

	recv := newReceiver(framed, outbound, registrations, sharedErr, shutdown, framed.Close, func() { close(done) })
	wr := newWriter(framed, outbound.Out(), sharedErr)
	go recv.run()
	go wr.run()

	t.Cleanup(func() {
		select {
		case <-shutdown:
		default:
			close(shutdown)
		}
		outbound.Close()
	})

	return ConnectionSender{
		outbound:      outbound,
		registrations: registrations,
		serial:        NewSerialID(),
		sharedErr:     sharedErr,
		done:          done,
	}, done
}

func TestConnectionSender_LookupTopic(t *testing.T) {
	sender, _ := newTestSender(t, func(send func(frame.Message), msg frame.Message) {
		if msg.Command.GetType() != api.BaseCommand_LOOKUP {
			return
		}
		send(frame.Message{Command: &api.BaseCommand{
			Type: api.BaseCommand_LOOKUP_RESPONSE.Enum(),
			LookupTopicResponse: &api.CommandLookupTopicResponse{
				RequestId:        msg.Command.LookupTopic.RequestId,
				BrokerServiceUrl: "pulsar://broker-1:6650",
				Response:         api.LookupType_Connect,
			},
		}})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, cerr := sender.LookupTopic(ctx, "persistent://p/ns/topic", false)
	if cerr != nil {
		t.Fatalf("LookupTopic: %v", cerr)
	}
	if resp.BrokerServiceUrl != "pulsar://broker-1:6650" {
		t.Fatalf("got %q", resp.BrokerServiceUrl)
	}
}

func TestConnectionSender_Send_HappyPath(t *testing.T) {
	sender, _ := newTestSender(t, func(send func(frame.Message), msg frame.Message) {
		if msg.Command.GetType() != api.BaseCommand_SEND {
			return
		}
		send(frame.Message{Command: &api.BaseCommand{
			Type: api.BaseCommand_SEND_RECEIPT.Enum(),
			SendReceipt: &api.CommandSendReceipt{
				ProducerId: msg.Command.Send.ProducerId,
				SequenceId: msg.Command.Send.SequenceId,
			},
		}})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	receipt, cerr := sender.Send(ctx, 1, 1, "prod-1", []byte("hello"), nil)
	if cerr != nil {
		t.Fatalf("Send: %v", cerr)
	}
	if receipt.SequenceId != 1 {
		t.Fatalf("got sequence_id %d, want 1", receipt.SequenceId)
	}
}

func TestConnectionSender_Send_ServerError(t *testing.T) {
	sender, _ := newTestSender(t, func(send func(frame.Message), msg frame.Message) {
		if msg.Command.GetType() != api.BaseCommand_SEND {
			return
		}
		send(frame.Message{Command: &api.BaseCommand{
			Type: api.BaseCommand_SEND_ERROR.Enum(),
			SendError: &api.CommandSendError{
				ProducerId: msg.Command.Send.ProducerId,
				SequenceId: msg.Command.Send.SequenceId,
				Error:      api.ServerError_PersistenceError,
				Message:    "disk full",
			},
		}})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, cerr := sender.Send(ctx, 1, 1, "prod-1", []byte("hello"), nil)
	if cerr == nil {
		t.Fatal("expected an error")
	}
}

func TestConnectionSender_Subscribe_RoutesDeliveries(t *testing.T) {
	var gotConsumerID uint64
	sender, _ := newTestSender(t, func(send func(frame.Message), msg frame.Message) {
		switch msg.Command.GetType() {
		case api.BaseCommand_SUBSCRIBE:
			gotConsumerID = msg.Command.Subscribe.ConsumerId
			send(frame.Message{Command: &api.BaseCommand{
				Type:    api.BaseCommand_SUCCESS.Enum(),
				Success: &api.CommandSuccess{RequestId: msg.Command.Subscribe.RequestId},
			}})
			// Simulate a broker-initiated delivery right after the
			// subscribe succeeds, to exercise the
			// register-before-enqueue ordering.
			send(frame.Message{Command: &api.BaseCommand{
				Type:    api.BaseCommand_MESSAGE.Enum(),
				Message: &api.CommandMessage{ConsumerId: gotConsumerID},
			}})
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	delivery := make(chan frame.Message, 4)
	_, cerr := sender.Subscribe(ctx, delivery, "persistent://p/ns/topic", "sub-1", api.SubType_Shared, 42, nil, ConsumerOptions{})
	if cerr != nil {
		t.Fatalf("Subscribe: %v", cerr)
	}

	select {
	case m := <-delivery:
		if m.Command.Message.ConsumerId != 42 {
			t.Fatalf("delivered to wrong consumer id %d", m.Command.Message.ConsumerId)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribed consumer never received its delivery")
	}
}

func TestConnectionSender_SendPing(t *testing.T) {
	sender, _ := newTestSender(t, nil) // mock broker auto-replies to Ping

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if cerr := sender.SendPing(ctx); cerr != nil {
		t.Fatalf("SendPing: %v", cerr)
	}
}

func TestConnectionSender_TransportDeath_ObservedByCallers(t *testing.T) {
	client := newMockBroker(t, nil)
	framed := frame.NewFramedConn(client)
	if err := framed.Send(frame.Message{Command: &api.BaseCommand{Type: api.BaseCommand_CONNECT.Enum(), Connect: &api.CommandConnect{ClientVersion: "test"}}}); err != nil {
		t.Fatalf("handshake send: %v", err)
	}
	if _, err := framed.Recv(); err != nil {
		t.Fatalf("handshake recv: %v", err)
	}

	outbound := newUnboundedQueue[frame.Message]()
	registrations := newUnboundedQueue[frame.Register]()
	sharedErr := NewSharedError()
	shutdown := make(chan struct{})
	done := make(chan struct{})

	recv := newReceiver(framed, outbound, registrations, sharedErr, shutdown, framed.Close, func() { close(done) })
	wr := newWriter(framed, outbound.Out(), sharedErr)
	go recv.run()
	go wr.run()

	sender := ConnectionSender{outbound: outbound, registrations: registrations, serial: NewSerialID(), sharedErr: sharedErr, done: done}

	// Kill the transport out from under the receiver.
	client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if cerr := sender.SendPing(ctx); cerr == nil {
		t.Fatal("expected an error once the transport died")
	}
	if sender.IsValid() {
		t.Fatal("IsValid should report false once the shared error is latched")
	}
}
