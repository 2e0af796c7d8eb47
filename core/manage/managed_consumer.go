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

// Package manage is the higher-layer Consumer built on top of
// core/conn.ConnectionSender: it owns one subscription's consumer_id,
// turns the Receiver's raw delivery channel into typed Messages with
// flow control, and applies the ack/redeliver/close commands.
//
// This package still reaches for logrus rather than the zerolog wrapper
// the rest of the tree uses — it predates the zerolog migration and
// hasn't been ported yet.
package manage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaypulsar/pulsar-client-go/core/conn"
	"github.com/relaypulsar/pulsar-client-go/core/frame"
	"github.com/relaypulsar/pulsar-client-go/pkg/api"
)

var log = logrus.WithField("component", "manage")

// SubscriptionMode represents Pulsar's three subscription models.
type SubscriptionMode int

const (
	// SubscriptionModeExclusive: only one consumer can be bound to a
	// subscription. Subsequent subscribers receive an error.
	SubscriptionModeExclusive SubscriptionMode = iota + 1
	// SubscriptionModeShard: multiple consumers share a subscription,
	// each message going to exactly one of them round-robin.
	SubscriptionModeShard
	// SubscriptionModeFailover: multiple consumers are ordered
	// lexicographically by name; only the first (master) receives
	// messages until it disconnects.
	SubscriptionModeFailover
)

func (m SubscriptionMode) subType() api.SubType {
	switch m {
	case SubscriptionModeShard:
		return api.SubType_Shared
	case SubscriptionModeFailover:
		return api.SubType_Failover
	default:
		return api.SubType_Exclusive
	}
}

// ErrInvalidSubMode is returned when a ConsumerConfig's SubMode isn't
// one of the SubscriptionMode constants.
var ErrInvalidSubMode = errors.New("invalid subscription mode")

// Message is the consumer-facing form of a broker delivery: the decoded
// id, properties and payload, independent of the frame.Message it
// arrived as.
type Message struct {
	ConsumerID      uint64
	ID              api.MessageIdData
	RedeliveryCount uint32
	Properties      map[string]string
	Payload         []byte
}

func messageFromFrame(m frame.Message) Message {
	out := Message{ConsumerID: m.Command.Message.ConsumerId, ID: m.Command.Message.MessageId}
	if rc := m.Command.Message.RedeliveryCount; rc != nil {
		out.RedeliveryCount = *rc
	}
	if m.Payload != nil {
		out.Payload = m.Payload.Data
		if md := m.Payload.Metadata; md != nil && len(md.Properties) > 0 {
			out.Properties = make(map[string]string, len(md.Properties))
			for _, kv := range md.Properties {
				out.Properties[kv.Key] = kv.Value
			}
		}
	}
	return out
}

// ConsumerConfig configures a ManagedConsumer's subscription.
type ConsumerConfig struct {
	Topic        string
	Subscription string
	SubMode      SubscriptionMode
	ConsumerID   uint64
	ConsumerName *string
	Earliest     bool // if true, subscription cursor starts at the beginning of the topic
	QueueSize    int  // number of messages to buffer before applying back-pressure

	Opts conn.ConsumerOptions
}

// SetDefaults returns a modified config with appropriate zero values set.
func (c ConsumerConfig) SetDefaults() ConsumerConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.Opts.InitialPosition == nil {
		pos := api.InitialPosition_Latest
		if c.Earliest {
			pos = api.InitialPosition_Earliest
		}
		c.Opts.InitialPosition = &pos
	}
	return c
}

// ManagedConsumer wraps a single subscription against one
// ConnectionSender: the broker's raw MESSAGE deliveries are converted
// into Messages and buffered, flow control permits are requested as the
// buffer drains, and Close tears the subscription down cleanly.
//
// Unlike the teacher's original (which reconnected across a pool of
// brokers transparently), this version is scoped to the single
// connection core this repository implements: if the underlying
// connection dies, Closed unblocks and the caller is expected to
// establish a new Connection/ManagedConsumer pair, the same way a
// ConnectionSender itself does not reconnect on failure.
type ManagedConsumer struct {
	sender conn.ConnectionSender
	cfg    ConsumerConfig

	delivery chan frame.Message
	queue    chan Message

	mu       sync.RWMutex
	isClosed bool
	closedc  chan struct{}

	stopPump chan struct{}
}

// NewManagedConsumer subscribes cfg's consumer_id against sender and
// starts the background pump that applies flow control.
func NewManagedConsumer(ctx context.Context, sender conn.ConnectionSender, cfg ConsumerConfig) (*ManagedConsumer, *conn.ConnectionError) {
	cfg = cfg.SetDefaults()

	delivery := make(chan frame.Message, cfg.QueueSize)
	if _, cerr := sender.Subscribe(ctx, delivery, cfg.Topic, cfg.Subscription, cfg.SubMode.subType(), cfg.ConsumerID, cfg.ConsumerName, cfg.Opts); cerr != nil {
		return nil, cerr
	}

	m := &ManagedConsumer{
		sender:   sender,
		cfg:      cfg,
		delivery: delivery,
		queue:    make(chan Message, cfg.QueueSize),
		closedc:  make(chan struct{}),
		stopPump: make(chan struct{}),
	}

	if cerr := sender.SendFlow(cfg.ConsumerID, uint32(cfg.QueueSize)); cerr != nil {
		return nil, cerr
	}

	go m.pump()
	return m, nil
}

// pump drains raw deliveries into the typed queue, re-requesting flow
// permits once half the buffer has been consumed, and watches for the
// connection going invalid so Closed can unblock without an explicit
// Close call (e.g. after a transport failure).
func (m *ManagedConsumer) pump() {
	highwater := uint32(cap(m.queue)) / 2
	if highwater == 0 {
		highwater = 1
	}
	var sinceFlow uint32

	healthCheck := time.NewTicker(time.Second)
	defer healthCheck.Stop()

	for {
		select {
		case <-m.stopPump:
			return

		case <-healthCheck.C:
			if !m.sender.IsValid() {
				log.WithField("topic", m.cfg.Topic).Warn("manage: connection invalidated, closing consumer")
				m.markClosed()
				return
			}

		case raw, ok := <-m.delivery:
			if !ok {
				m.markClosed()
				return
			}
			m.queue <- messageFromFrame(raw)
			if sinceFlow++; sinceFlow >= highwater {
				if cerr := m.sender.SendFlow(m.cfg.ConsumerID, sinceFlow); cerr != nil {
					log.WithError(cerr).WithField("topic", m.cfg.Topic).Warn("manage: flow request failed")
				}
				sinceFlow = 0
			}
		}
	}
}

func (m *ManagedConsumer) markClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isClosed {
		return
	}
	m.isClosed = true
	close(m.closedc)
}

// Closed returns a channel that unblocks once the consumer has stopped
// receiving deliveries, whether by an explicit Close or because the
// underlying connection failed.
func (m *ManagedConsumer) Closed() <-chan struct{} {
	return m.closedc
}

// Receive returns the next Message. It sends no flow permits itself;
// the background pump requests them as deliveries move into the queue.
func (m *ManagedConsumer) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-m.queue:
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-m.closedc:
		return Message{}, errors.New("consumer closed")
	}
}

// ReceiveAsync continuously forwards messages to msgs until ctx is
// done or the consumer closes.
func (m *ManagedConsumer) ReceiveAsync(ctx context.Context, msgs chan<- Message) error {
	for {
		select {
		case msg := <-m.queue:
			msgs <- msg
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closedc:
			return errors.New("consumer closed")
		}
	}
}

// Ack acknowledges a single message.
func (m *ManagedConsumer) Ack(msg Message) error {
	if cerr := m.sender.SendAck(m.cfg.ConsumerID, []api.MessageIdData{msg.ID}, false); cerr != nil {
		return cerr
	}
	return nil
}

// RedeliverUnacknowledged requests redelivery of every message the
// broker has sent but not yet seen an Ack for.
// https://github.com/apache/incubator-pulsar/issues/2003
func (m *ManagedConsumer) RedeliverUnacknowledged() error {
	if cerr := m.sender.SendRedeliverUnacked(m.cfg.ConsumerID, nil); cerr != nil {
		return cerr
	}
	return nil
}

// Close sends CloseConsumer and stops the pump. Safe to call more than once.
func (m *ManagedConsumer) Close(ctx context.Context) error {
	m.mu.RLock()
	closed := m.isClosed
	m.mu.RUnlock()
	if closed {
		return nil
	}

	close(m.stopPump)
	_, cerr := m.sender.CloseConsumer(ctx, m.cfg.ConsumerID)
	m.markClosed()
	if cerr != nil {
		return cerr
	}
	return nil
}
