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

package frame

import (
	"fmt"

	"github.com/relaypulsar/pulsar-client-go/pkg/api"
)

// Payload carries the metadata + raw bytes that ride alongside a "payload"
// command (currently only CommandSend and broker CommandMessage
// deliveries).
type Payload struct {
	Metadata *api.MessageMetadata
	Data     []byte
}

// Message is the in-memory, already-decoded form of a single wire frame:
// a command plus an optional payload. It is immutable after construction.
type Message struct {
	Command *api.BaseCommand
	Payload *Payload
}

func (m Message) String() string {
	if m.Command == nil {
		return "Message{<nil command>}"
	}
	return fmt.Sprintf("Message{%s}", m.Command.GetType())
}

// RequestKeyKind discriminates the three ways a Message can be correlated
// back to a caller.
type RequestKeyKind int

const (
	// RequestKeyRequestID correlates by the command's request_id field;
	// used for all command/ack-style RPCs.
	RequestKeyRequestID RequestKeyKind = iota
	// RequestKeyProducerSend correlates a publish by (producer_id,
	// sequence_id), since a CommandSendReceipt/CommandSendError doesn't
	// carry a request_id.
	RequestKeyProducerSend
	// RequestKeyConsumer correlates a broker-initiated delivery by the
	// consumer_id it targets.
	RequestKeyConsumer
)

// RequestKey identifies exactly one request/response exchange, or one
// consumer's delivery stream. It is comparable (usable as a map key) and
// carries a total order so it would be equally at home keyed into a
// BTreeMap, per the spec's data model.
type RequestKey struct {
	Kind       RequestKeyKind
	RequestID  uint64
	ProducerID uint64
	SequenceID uint64
	ConsumerID uint64
}

func RequestIDKey(id uint64) RequestKey {
	return RequestKey{Kind: RequestKeyRequestID, RequestID: id}
}

func ProducerSendKey(producerID, sequenceID uint64) RequestKey {
	return RequestKey{Kind: RequestKeyProducerSend, ProducerID: producerID, SequenceID: sequenceID}
}

func ConsumerKey(consumerID uint64) RequestKey {
	return RequestKey{Kind: RequestKeyConsumer, ConsumerID: consumerID}
}

// Less gives RequestKey a total order (Kind, then the relevant fields),
// matching the spec's "keys are totally ordered (suitable for an ordered
// map)" requirement. Go's built-in maps only need == comparability for
// lookups, which RequestKey already has by being a plain comparable
// struct, but Less lets a caller keep a BTreeMap-equivalent (e.g. for
// deterministic iteration in tests/logging) if one is ever needed.
func (k RequestKey) Less(other RequestKey) bool {
	if k.Kind != other.Kind {
		return k.Kind < other.Kind
	}
	switch k.Kind {
	case RequestKeyRequestID:
		return k.RequestID < other.RequestID
	case RequestKeyProducerSend:
		if k.ProducerID != other.ProducerID {
			return k.ProducerID < other.ProducerID
		}
		return k.SequenceID < other.SequenceID
	case RequestKeyConsumer:
		return k.ConsumerID < other.ConsumerID
	default:
		return false
	}
}

func (k RequestKey) String() string {
	switch k.Kind {
	case RequestKeyRequestID:
		return fmt.Sprintf("RequestId(%d)", k.RequestID)
	case RequestKeyProducerSend:
		return fmt.Sprintf("ProducerSend{producer_id: %d, sequence_id: %d}", k.ProducerID, k.SequenceID)
	case RequestKeyConsumer:
		return fmt.Sprintf("Consumer{consumer_id: %d}", k.ConsumerID)
	default:
		return "RequestKey{?}"
	}
}

// RequestKey computes the demultiplexing key for an inbound message, if
// any. Ping/Pong are handled separately by the receiver before this is
// ever consulted. A nil, ok==false result means "log and drop" per the
// spec's Receiver edge policy.
func (m Message) RequestKey() (RequestKey, bool) {
	cmd := m.Command
	if cmd == nil {
		return RequestKey{}, false
	}

	switch cmd.GetType() {
	case api.BaseCommand_SEND_RECEIPT:
		return ProducerSendKey(cmd.SendReceipt.ProducerId, cmd.SendReceipt.SequenceId), true
	case api.BaseCommand_SEND_ERROR:
		return ProducerSendKey(cmd.SendError.ProducerId, cmd.SendError.SequenceId), true

	case api.BaseCommand_MESSAGE:
		return ConsumerKey(cmd.Message.ConsumerId), true
	case api.BaseCommand_ACTIVE_CONSUMER_CHANGE:
		return ConsumerKey(cmd.ActiveConsumerChange.ConsumerId), true
	case api.BaseCommand_REACHED_END_OF_TOPIC:
		return ConsumerKey(cmd.ReachedEndOfTopic.ConsumerId), true
	case api.BaseCommand_CLOSE_CONSUMER:
		return ConsumerKey(cmd.CloseConsumer.ConsumerId), true

	case api.BaseCommand_LOOKUP_RESPONSE:
		return RequestIDKey(cmd.LookupTopicResponse.RequestId), true
	case api.BaseCommand_PARTITIONED_METADATA_RESPONSE:
		return RequestIDKey(cmd.PartitionMetadataResponse.RequestId), true
	case api.BaseCommand_PRODUCER_SUCCESS:
		return RequestIDKey(cmd.ProducerSuccess.RequestId), true
	case api.BaseCommand_GET_TOPICS_OF_NAMESPACE_RESPONSE:
		return RequestIDKey(cmd.GetTopicsOfNamespaceResponse.RequestId), true
	case api.BaseCommand_SUCCESS:
		return RequestIDKey(cmd.Success.RequestId), true
	case api.BaseCommand_ERROR:
		return RequestIDKey(cmd.Error.RequestId), true

	default:
		return RequestKey{}, false
	}
}

// Register is posted to the Receiver to associate a RequestKey (or a
// consumer id, or the ping slot) with a waiter. It mirrors the Rust
// `enum Register` from the connection core this package implements.
type Register interface {
	isRegister()
}

// RegisterRequest registers a single-shot resolver for one RequestKey.
type RegisterRequest struct {
	Key      RequestKey
	Resolver chan Message
}

func (RegisterRequest) isRegister() {}

// RegisterConsumer installs (overwriting any previous installation) the
// many-shot delivery channel for a consumer id.
type RegisterConsumer struct {
	ConsumerID uint64
	Resolver   chan Message
}

func (RegisterConsumer) isRegister() {}

// RegisterPing installs (overwriting any previous installation) the
// single-shot resolver completed by the next inbound Pong.
type RegisterPing struct {
	Resolver chan struct{}
}

func (RegisterPing) isRegister() {}
