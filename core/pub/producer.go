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

// Package pub is the higher-layer Producer built on top of
// core/conn.ConnectionSender: it owns a producer_id/sequence_id pair and
// turns repeated Send calls into the connection core's per-producer-send
// correlation.
package pub

import (
	"context"
	"errors"
	"sync"

	"github.com/relaypulsar/pulsar-client-go/core/conn"
	"github.com/relaypulsar/pulsar-client-go/pkg/api"
)

// ErrClosedProducer is returned when attempting to send from a closed
// Producer.
var ErrClosedProducer = errors.New("producer is closed")

// TraceHook is invoked with the constructed metadata and payload
// immediately before a message is handed to the sender, for callers that
// want to stitch in distributed tracing.
type TraceHook interface {
	OnSend(ctx context.Context, metadata *api.MessageMetadata, payload []byte)
}

// Producer creates a subscription producer and manages its send
// sequence. One Producer should be used by a single topic/producer_id
// pair; concurrent Send calls are safe (each allocates its own
// sequence id).
type Producer struct {
	sender conn.ConnectionSender

	Topic        string
	ProducerID   uint64
	ProducerName string

	seq conn.SerialID

	mu       sync.RWMutex
	isClosed bool
	closedc  chan struct{}

	traceHook TraceHook
}

// NewProducer registers producerID against topic over sender and returns
// a ready-to-use Producer. name, if non-nil, requests a specific producer
// name; otherwise the broker assigns one, returned in ProducerName.
func NewProducer(ctx context.Context, sender conn.ConnectionSender, topic string, producerID uint64, name *string, opts conn.ProducerOptions) (*Producer, *conn.ConnectionError) {
	resp, cerr := sender.CreateProducer(ctx, topic, producerID, name, opts)
	if cerr != nil {
		return nil, cerr
	}
	return &Producer{
		sender:       sender,
		Topic:        topic,
		ProducerID:   producerID,
		ProducerName: resp.ProducerName,
		seq:          conn.NewSerialID(),
		closedc:      make(chan struct{}),
	}, nil
}

// AddTraceHook installs a trace hook. Intended to be called once, right
// after construction, before any concurrent Send calls begin.
func (p *Producer) AddTraceHook(th TraceHook) {
	p.traceHook = th
}

// Send sends payload and waits for its SendReceipt.
func (p *Producer) Send(ctx context.Context, payload []byte, properties map[string]string) (*api.CommandSendReceipt, error) {
	p.mu.RLock()
	closed := p.isClosed
	p.mu.RUnlock()
	if closed {
		return nil, ErrClosedProducer
	}

	sequenceID := p.seq.Next()

	if p.traceHook != nil {
		p.traceHook.OnSend(ctx, &api.MessageMetadata{SequenceId: sequenceID, ProducerName: p.ProducerName}, payload)
	}

	receipt, cerr := p.sender.Send(ctx, p.ProducerID, sequenceID, p.ProducerName, payload, properties)
	if cerr != nil {
		return nil, cerr
	}
	return receipt, nil
}

// Closed returns a channel that unblocks once Close has completed. The
// connection core has no routing key for a broker-initiated
// CLOSE_PRODUCER, so this only ever closes in response to an explicit
// Close call, never on its own.
func (p *Producer) Closed() <-chan struct{} {
	return p.closedc
}

// Close sends CloseProducer and waits for the broker's Success. The
// broker stops accepting new sends for this producer, waits for pending
// messages to persist, then replies.
// https://pulsar.incubator.apache.org/docs/latest/project/BinaryProtocol/#command-closeproducer
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return nil
	}

	if _, cerr := p.sender.CloseProducer(ctx, p.ProducerID); cerr != nil {
		return cerr
	}

	p.isClosed = true
	close(p.closedc)
	return nil
}
