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

	"github.com/relaypulsar/pulsar-client-go/core/frame"
	"github.com/relaypulsar/pulsar-client-go/pkg/api"
)

// ConnectionSender is the caller-facing handle onto a live connection: a
// clone of the outbound queue's producer side, a clone of the
// registrations queue's producer side, a request-id generator, and the
// shared-error cell. Copying a ConnectionSender is cheap and safe — every
// field is a pointer or already-shareable value, same as cloning the
// Rust original's Arc-wrapped handle.
type ConnectionSender struct {
	outbound      *unboundedQueue[frame.Message]
	registrations *unboundedQueue[frame.Register]
	serial        SerialID
	sharedErr     SharedError
	done          <-chan struct{}
}

// Send publishes one message under producerID, returning once the
// broker's SendReceipt (or SendError) for sequenceID arrives.
func (s ConnectionSender) Send(ctx context.Context, producerID, sequenceID uint64, producerName string, payload []byte, properties map[string]string) (*api.CommandSendReceipt, *ConnectionError) {
	key := frame.ProducerSendKey(producerID, sequenceID)
	msg := sendMessage(producerID, sequenceID, producerName, payload, properties)

	resp, err := s.request(ctx, key, msg)
	if err != nil {
		return nil, err
	}
	if resp.Command.GetType() == api.BaseCommand_SEND_ERROR {
		se := resp.Command.SendError
		return nil, errPulsar(se.Error, se.Message)
	}
	receipt := resp.Command.GetSendReceipt()
	if receipt == nil {
		return nil, errUnexpectedResponse("expected send_receipt, got %s", resp.Command.GetType())
	}
	return receipt, nil
}

// SendPing posts a Ping registration and enqueues a PING frame, returning
// once the next PONG arrives.
func (s ConnectionSender) SendPing(ctx context.Context) *ConnectionError {
	resolver := make(chan struct{}, 1)
	if !s.registrations.Send(frame.RegisterPing{Resolver: resolver}) {
		return errDisconnected()
	}
	if !s.outbound.Send(pingMessage()) {
		return errDisconnected()
	}
	select {
	case <-resolver:
		return nil
	case <-s.done:
		return s.observedError()
	case <-ctx.Done():
		return errUnexpected("%v", ctx.Err())
	}
}

func (s ConnectionSender) LookupTopic(ctx context.Context, topic string, authoritative bool) (*api.CommandLookupTopicResponse, *ConnectionError) {
	id := s.serial.Next()
	resp, err := s.request(ctx, frame.RequestIDKey(id), lookupTopicMessage(topic, authoritative, id))
	if err != nil {
		return nil, err
	}
	r := resp.Command.LookupTopicResponse
	if r == nil {
		return nil, errUnexpectedResponse("expected lookup_topic_response, got %s", resp.Command.GetType())
	}
	return r, nil
}

func (s ConnectionSender) LookupPartitionedTopic(ctx context.Context, topic string) (*api.CommandPartitionedTopicMetadataResponse, *ConnectionError) {
	id := s.serial.Next()
	resp, err := s.request(ctx, frame.RequestIDKey(id), lookupPartitionedTopicMessage(topic, id))
	if err != nil {
		return nil, err
	}
	r := resp.Command.PartitionMetadataResponse
	if r == nil {
		return nil, errUnexpectedResponse("expected partition_metadata_response, got %s", resp.Command.GetType())
	}
	return r, nil
}

func (s ConnectionSender) CreateProducer(ctx context.Context, topic string, producerID uint64, producerName *string, opts ProducerOptions) (*api.CommandProducerSuccess, *ConnectionError) {
	id := s.serial.Next()
	resp, err := s.request(ctx, frame.RequestIDKey(id), createProducerMessage(topic, producerID, id, producerName, opts))
	if err != nil {
		return nil, err
	}
	r := resp.Command.ProducerSuccess
	if r == nil {
		return nil, errUnexpectedResponse("expected producer_success, got %s", resp.Command.GetType())
	}
	return r, nil
}

func (s ConnectionSender) GetTopicsOfNamespace(ctx context.Context, namespace string, mode api.GetTopicsMode) (*api.CommandGetTopicsOfNamespaceResponse, *ConnectionError) {
	id := s.serial.Next()
	resp, err := s.request(ctx, frame.RequestIDKey(id), getTopicsOfNamespaceMessage(id, namespace, mode))
	if err != nil {
		return nil, err
	}
	r := resp.Command.GetTopicsOfNamespaceResponse
	if r == nil {
		return nil, errUnexpectedResponse("expected get_topics_of_namespace_response, got %s", resp.Command.GetType())
	}
	return r, nil
}

func (s ConnectionSender) CloseProducer(ctx context.Context, producerID uint64) (*api.CommandSuccess, *ConnectionError) {
	id := s.serial.Next()
	return s.expectSuccess(ctx, frame.RequestIDKey(id), closeProducerMessage(producerID, id))
}

// Subscribe registers consumerID's delivery channel *before* enqueueing
// the Subscribe command, per spec.md section 4.5/5: otherwise a
// broker-initiated delivery could arrive before the routing entry exists.
func (s ConnectionSender) Subscribe(ctx context.Context, delivery chan frame.Message, topic, subscription string, subType api.SubType, consumerID uint64, consumerName *string, opts ConsumerOptions) (*api.CommandSuccess, *ConnectionError) {
	if !s.registrations.Send(frame.RegisterConsumer{ConsumerID: consumerID, Resolver: delivery}) {
		return nil, errDisconnected()
	}
	id := s.serial.Next()
	return s.expectSuccess(ctx, frame.RequestIDKey(id), subscribeMessage(topic, subscription, subType, consumerID, id, consumerName, opts))
}

func (s ConnectionSender) CloseConsumer(ctx context.Context, consumerID uint64) (*api.CommandSuccess, *ConnectionError) {
	id := s.serial.Next()
	return s.expectSuccess(ctx, frame.RequestIDKey(id), closeConsumerMessage(consumerID, id))
}

// SendFlow, SendAck and SendRedeliverUnacked are fire-and-forget: they
// only report whether the frame could be enqueued.
func (s ConnectionSender) SendFlow(consumerID uint64, permits uint32) *ConnectionError {
	if !s.outbound.Send(flowMessage(consumerID, permits)) {
		return errDisconnected()
	}
	return nil
}

func (s ConnectionSender) SendAck(consumerID uint64, ids []api.MessageIdData, cumulative bool) *ConnectionError {
	if !s.outbound.Send(ackMessage(consumerID, ids, cumulative)) {
		return errDisconnected()
	}
	return nil
}

func (s ConnectionSender) SendRedeliverUnacked(consumerID uint64, ids []api.MessageIdData) *ConnectionError {
	if !s.outbound.Send(redeliverUnackedMessage(consumerID, ids)) {
		return errDisconnected()
	}
	return nil
}

// expectSuccess is request plus the common "response must carry a
// success field" extraction shared by close_producer/subscribe/close_consumer.
func (s ConnectionSender) expectSuccess(ctx context.Context, key frame.RequestKey, msg frame.Message) (*api.CommandSuccess, *ConnectionError) {
	resp, err := s.request(ctx, key, msg)
	if err != nil {
		return nil, err
	}
	r := resp.Command.Success
	if r == nil {
		return nil, errUnexpectedResponse("expected success, got %s", resp.Command.GetType())
	}
	return r, nil
}

// request is the common request/response shape from spec.md section 4.5:
// post a single-shot Register{key, resolver}, enqueue the command frame,
// await the resolver (racing it against connection death), and surface
// any server-side error before returning.
func (s ConnectionSender) request(ctx context.Context, key frame.RequestKey, msg frame.Message) (frame.Message, *ConnectionError) {
	resolver := make(chan frame.Message, 1)
	if !s.registrations.Send(frame.RegisterRequest{Key: key, Resolver: resolver}) {
		return frame.Message{}, errDisconnected()
	}
	if !s.outbound.Send(msg) {
		return frame.Message{}, errDisconnected()
	}

	var resp frame.Message
	select {
	case resp = <-resolver:
	case <-s.done:
		return frame.Message{}, s.observedError()
	case <-ctx.Done():
		return frame.Message{}, errUnexpected("%v", ctx.Err())
	}

	if resp.Command.GetType() == api.BaseCommand_ERROR {
		e := resp.Command.Error
		return frame.Message{}, errPulsar(e.Error, e.Message)
	}
	return resp, nil
}

// observedError surfaces whatever the shared-error cell latched, first
// latching plain Disconnected if the Receiver exited without one (an
// orderly shutdown races the same way a transport failure does). The
// cell is read without being consumed, so IsValid keeps reporting false.
func (s ConnectionSender) observedError() *ConnectionError {
	s.sharedErr.mu.Lock()
	defer s.sharedErr.mu.Unlock()
	if *s.sharedErr.err == nil {
		*s.sharedErr.err = errDisconnected()
	}
	return *s.sharedErr.err
}

// IsValid reports whether the connection is still believed healthy.
func (s ConnectionSender) IsValid() bool {
	return !s.sharedErr.IsSet()
}
