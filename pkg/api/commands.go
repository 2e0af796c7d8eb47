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

// Package api holds the hand-maintained stand-in for the generated
// BaseCommand protobuf package. A production client would generate this
// from pulsar's PulsarApi.proto with protoc-gen-go; the spec this package
// implements treats that generation step as an external collaborator
// (spec.md section 1, "Out of scope: ... the protobuf BaseCommand message
// definitions — assumed generated"), so the shapes below are written by
// hand in the same proto2 style (pointer fields, getters, enums with an
// Enum() helper) that protoc-gen-go would have produced, without actually
// depending on the protobuf wire format — see core/frame for the encoding
// this package's types are plugged into.
package api

import (
	"fmt"
)

// ProtocolVersion is the wire protocol version this client speaks.
const ProtocolVersion = 12

// BaseCommand_Type enumerates every command variant carried on the wire.
type BaseCommand_Type int32

const (
	BaseCommand_CONNECT                             BaseCommand_Type = 2
	BaseCommand_CONNECTED                           BaseCommand_Type = 3
	BaseCommand_SUBSCRIBE                           BaseCommand_Type = 4
	BaseCommand_PRODUCER                            BaseCommand_Type = 5
	BaseCommand_SEND                                BaseCommand_Type = 6
	BaseCommand_SEND_RECEIPT                        BaseCommand_Type = 7
	BaseCommand_SEND_ERROR                          BaseCommand_Type = 8
	BaseCommand_MESSAGE                             BaseCommand_Type = 9
	BaseCommand_ACK                                  BaseCommand_Type = 10
	BaseCommand_FLOW                                BaseCommand_Type = 11
	BaseCommand_UNSUBSCRIBE                         BaseCommand_Type = 12
	BaseCommand_SUCCESS                              BaseCommand_Type = 13
	BaseCommand_ERROR                               BaseCommand_Type = 14
	BaseCommand_CLOSE_PRODUCER                      BaseCommand_Type = 15
	BaseCommand_CLOSE_CONSUMER                      BaseCommand_Type = 16
	BaseCommand_PRODUCER_SUCCESS                    BaseCommand_Type = 17
	BaseCommand_PING                                BaseCommand_Type = 18
	BaseCommand_PONG                                BaseCommand_Type = 19
	BaseCommand_REDELIVER_UNACKNOWLEDGED_MESSAGES   BaseCommand_Type = 20
	BaseCommand_LOOKUP                              BaseCommand_Type = 21
	BaseCommand_LOOKUP_RESPONSE                     BaseCommand_Type = 22
	BaseCommand_REACHED_END_OF_TOPIC                BaseCommand_Type = 25
	BaseCommand_ACTIVE_CONSUMER_CHANGE              BaseCommand_Type = 31
	BaseCommand_GET_TOPICS_OF_NAMESPACE             BaseCommand_Type = 32
	BaseCommand_GET_TOPICS_OF_NAMESPACE_RESPONSE    BaseCommand_Type = 33
	BaseCommand_PARTITIONED_METADATA                BaseCommand_Type = 29
	BaseCommand_PARTITIONED_METADATA_RESPONSE       BaseCommand_Type = 30
)

func (t BaseCommand_Type) Enum() *BaseCommand_Type {
	u := t
	return &u
}

func (t BaseCommand_Type) String() string {
	switch t {
	case BaseCommand_CONNECT:
		return "CONNECT"
	case BaseCommand_CONNECTED:
		return "CONNECTED"
	case BaseCommand_SUBSCRIBE:
		return "SUBSCRIBE"
	case BaseCommand_PRODUCER:
		return "PRODUCER"
	case BaseCommand_SEND:
		return "SEND"
	case BaseCommand_SEND_RECEIPT:
		return "SEND_RECEIPT"
	case BaseCommand_SEND_ERROR:
		return "SEND_ERROR"
	case BaseCommand_MESSAGE:
		return "MESSAGE"
	case BaseCommand_ACK:
		return "ACK"
	case BaseCommand_FLOW:
		return "FLOW"
	case BaseCommand_UNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case BaseCommand_SUCCESS:
		return "SUCCESS"
	case BaseCommand_ERROR:
		return "ERROR"
	case BaseCommand_CLOSE_PRODUCER:
		return "CLOSE_PRODUCER"
	case BaseCommand_CLOSE_CONSUMER:
		return "CLOSE_CONSUMER"
	case BaseCommand_PRODUCER_SUCCESS:
		return "PRODUCER_SUCCESS"
	case BaseCommand_PING:
		return "PING"
	case BaseCommand_PONG:
		return "PONG"
	case BaseCommand_REDELIVER_UNACKNOWLEDGED_MESSAGES:
		return "REDELIVER_UNACKNOWLEDGED_MESSAGES"
	case BaseCommand_LOOKUP:
		return "LOOKUP"
	case BaseCommand_LOOKUP_RESPONSE:
		return "LOOKUP_RESPONSE"
	case BaseCommand_REACHED_END_OF_TOPIC:
		return "REACHED_END_OF_TOPIC"
	case BaseCommand_ACTIVE_CONSUMER_CHANGE:
		return "ACTIVE_CONSUMER_CHANGE"
	case BaseCommand_GET_TOPICS_OF_NAMESPACE:
		return "GET_TOPICS_OF_NAMESPACE"
	case BaseCommand_GET_TOPICS_OF_NAMESPACE_RESPONSE:
		return "GET_TOPICS_OF_NAMESPACE_RESPONSE"
	case BaseCommand_PARTITIONED_METADATA:
		return "PARTITIONED_METADATA"
	case BaseCommand_PARTITIONED_METADATA_RESPONSE:
		return "PARTITIONED_METADATA_RESPONSE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// ServerError mirrors the broker's ServerError enum used inside CommandError
// and CommandSendError.
type ServerError int32

const (
	ServerError_UnknownError            ServerError = 0
	ServerError_MetadataError           ServerError = 1
	ServerError_PersistenceError        ServerError = 2
	ServerError_AuthenticationError     ServerError = 3
	ServerError_AuthorizationError      ServerError = 4
	ServerError_ConsumerBusy            ServerError = 5
	ServerError_ServiceNotReady         ServerError = 6
	ServerError_ProducerBlockedQuotaExceededError ServerError = 7
	ServerError_TopicNotFound           ServerError = 8
	ServerError_SubscriptionNotFound    ServerError = 9
	ServerError_ConsumerNotFound        ServerError = 10
	ServerError_TooManyRequests         ServerError = 11
	ServerError_TopicTerminatedError    ServerError = 12
)

func (e ServerError) String() string {
	switch e {
	case ServerError_MetadataError:
		return "MetadataError"
	case ServerError_PersistenceError:
		return "PersistenceError"
	case ServerError_AuthenticationError:
		return "AuthenticationError"
	case ServerError_AuthorizationError:
		return "AuthorizationError"
	case ServerError_ConsumerBusy:
		return "ConsumerBusy"
	case ServerError_ServiceNotReady:
		return "ServiceNotReady"
	case ServerError_ProducerBlockedQuotaExceededError:
		return "ProducerBlockedQuotaExceededError"
	case ServerError_TopicNotFound:
		return "TopicNotFound"
	case ServerError_SubscriptionNotFound:
		return "SubscriptionNotFound"
	case ServerError_ConsumerNotFound:
		return "ConsumerNotFound"
	case ServerError_TooManyRequests:
		return "TooManyRequests"
	case ServerError_TopicTerminatedError:
		return "TopicTerminatedError"
	default:
		return "UnknownError"
	}
}

// CompressionType mirrors MessageMetadata's compression field.
type CompressionType int32

const (
	CompressionType_NONE CompressionType = 0
	CompressionType_LZ4  CompressionType = 1
	CompressionType_ZLIB CompressionType = 2
	CompressionType_ZSTD CompressionType = 3
)

func (c CompressionType) Enum() *CompressionType {
	u := c
	return &u
}

// SubType mirrors CommandSubscribe's subscription type.
type SubType int32

const (
	SubType_Exclusive SubType = 0
	SubType_Shared    SubType = 1
	SubType_Failover  SubType = 2
	SubType_KeyShared SubType = 3
)

// InitialPosition mirrors CommandSubscribe's cursor placement.
type InitialPosition int32

const (
	InitialPosition_Latest   InitialPosition = 0
	InitialPosition_Earliest InitialPosition = 1
)

// GetTopicsMode mirrors CommandGetTopicsOfNamespace's Mode field.
type GetTopicsMode int32

const (
	GetTopicsMode_Persistent    GetTopicsMode = 0
	GetTopicsMode_NonPersistent GetTopicsMode = 1
	GetTopicsMode_All           GetTopicsMode = 2
)

// AckType mirrors CommandAck's ack_type field.
type AckType int32

const (
	AckType_Individual AckType = 0
	AckType_Cumulative AckType = 1
)

// LookupType mirrors CommandLookupTopicResponse's response field ("the
// broker is redirecting me" vs "here is the owning broker").
type LookupType int32

const (
	LookupType_Redirect LookupType = 0
	LookupType_Connect  LookupType = 1
	LookupType_Failed   LookupType = 2
)

type KeyValue struct {
	Key   string
	Value string
}

type MessageIdData struct {
	LedgerId   uint64
	EntryId    uint64
	Partition  *int32
	BatchIndex *int32
}

// MessageMetadata carries the per-message envelope that accompanies a
// payload command's raw bytes.
type MessageMetadata struct {
	ProducerName        string
	SequenceId           uint64
	PublishTime          uint64
	Properties           []KeyValue
	ReplicatedFrom       *string
	PartitionKey         *string
	ReplicateTo          []string
	Compression          *CompressionType
	UncompressedSize     *uint32
	NumMessagesInBatch   *int32
	EventTime            *uint64
	EncryptionKeys       []string
	EncryptionAlgo       *string
	EncryptionParam      []byte
	SchemaVersion        []byte
}

// CommandConnect is the client's handshake request.
type CommandConnect struct {
	ClientVersion    string
	AuthMethodName   *string
	AuthData         []byte
	ProtocolVersion  *int32
	ProxyToBrokerUrl *string
}

// CommandConnected is the broker's successful handshake reply.
type CommandConnected struct {
	ServerVersion   string
	ProtocolVersion *int32
}

func (c *CommandConnected) GetProtocolVersion() int32 {
	if c == nil || c.ProtocolVersion == nil {
		return 0
	}
	return *c.ProtocolVersion
}

func (c *CommandConnected) GetServerVersion() string {
	if c == nil {
		return ""
	}
	return c.ServerVersion
}

type CommandPing struct{}
type CommandPong struct{}

type CommandError struct {
	RequestId uint64
	Error     ServerError
	Message   string
}

func (e *CommandError) GetError() ServerError {
	if e == nil {
		return ServerError_UnknownError
	}
	return e.Error
}

func (e *CommandError) GetMessage() string {
	if e == nil {
		return ""
	}
	return e.Message
}

type CommandLookupTopic struct {
	Topic          string
	RequestId      uint64
	Authoritative  *bool
	AuthData       []byte
	AdvertisedListenerName *string
}

type CommandLookupTopicResponse struct {
	BrokerServiceUrl    string
	BrokerServiceUrlTls *string
	Response            LookupType
	RequestId           uint64
	Authoritative       *bool
	Error               *ServerError
	Message             *string
	ProxyThroughServiceUrl *bool
}

type CommandPartitionedTopicMetadata struct {
	Topic     string
	RequestId uint64
}

type CommandPartitionedTopicMetadataResponse struct {
	Partitions *uint32
	RequestId  uint64
	Error      *ServerError
	Message    *string
}

type CommandProducer struct {
	Topic        string
	ProducerId   uint64
	RequestId    uint64
	ProducerName *string
	Encrypted    *bool
	Metadata     []KeyValue
	Schema       []byte
}

type CommandProducerSuccess struct {
	RequestId      uint64
	ProducerName   string
	LastSequenceId *int64
}

func (s *CommandProducerSuccess) GetProducerName() string {
	if s == nil {
		return ""
	}
	return s.ProducerName
}

type CommandGetTopicsOfNamespace struct {
	RequestId uint64
	Namespace string
	Mode      *GetTopicsMode
}

type CommandGetTopicsOfNamespaceResponse struct {
	RequestId uint64
	Topics    []string
}

type CommandCloseProducer struct {
	ProducerId uint64
	RequestId  uint64
}

type CommandCloseConsumer struct {
	ConsumerId uint64
	RequestId  uint64
}

type CommandSuccess struct {
	RequestId uint64
}

type CommandSubscribe struct {
	Topic           string
	Subscription    string
	SubType         SubType
	ConsumerId      uint64
	RequestId       uint64
	ConsumerName    *string
	PriorityLevel   *int32
	Durable         *bool
	Metadata        []KeyValue
	ReadCompacted   *bool
	InitialPosition *InitialPosition
	Schema          []byte
	StartMessageId  *MessageIdData
}

type CommandFlow struct {
	ConsumerId      uint64
	MessagePermits  uint32
}

type CommandAck struct {
	ConsumerId       uint64
	AckType          AckType
	MessageId        []MessageIdData
	ValidationError  *string
	Properties       []KeyValue
}

type CommandRedeliverUnacknowledgedMessages struct {
	ConsumerId uint64
	MessageIds []MessageIdData
}

type CommandSend struct {
	ProducerId  uint64
	SequenceId  uint64
	NumMessages *int32
}

type CommandSendReceipt struct {
	ProducerId uint64
	SequenceId uint64
	MessageId  *MessageIdData
}

type CommandSendError struct {
	ProducerId uint64
	SequenceId uint64
	Error      ServerError
	Message    string
}

func (e *CommandSendError) GetError() ServerError {
	if e == nil {
		return ServerError_UnknownError
	}
	return e.Error
}

func (e *CommandSendError) GetMessage() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// CommandMessage is the broker-initiated delivery envelope; the actual
// payload/metadata ride alongside it in the frame, not inside this struct.
type CommandMessage struct {
	ConsumerId uint64
	MessageId  MessageIdData
	RedeliveryCount *uint32
}

type CommandActiveConsumerChange struct {
	ConsumerId uint64
	IsActive   *bool
}

type CommandReachedEndOfTopic struct {
	ConsumerId uint64
}

// BaseCommand is the envelope every frame carries: a required Type
// discriminant plus exactly one populated command field. Unknown fields
// (i.e. command variants this package hasn't modeled) are ignored on
// decode, per the wire protocol's forward-compatibility contract.
type BaseCommand struct {
	Type *BaseCommand_Type

	Connect  *CommandConnect
	Connected *CommandConnected
	Ping     *CommandPing
	Pong     *CommandPong
	Error    *CommandError

	LookupTopic         *CommandLookupTopic
	LookupTopicResponse *CommandLookupTopicResponse

	PartitionMetadata         *CommandPartitionedTopicMetadata
	PartitionMetadataResponse *CommandPartitionedTopicMetadataResponse

	Producer        *CommandProducer
	ProducerSuccess *CommandProducerSuccess
	CloseProducer   *CommandCloseProducer

	GetTopicsOfNamespace         *CommandGetTopicsOfNamespace
	GetTopicsOfNamespaceResponse *CommandGetTopicsOfNamespaceResponse

	Subscribe     *CommandSubscribe
	CloseConsumer *CommandCloseConsumer
	Success       *CommandSuccess

	Flow                         *CommandFlow
	Ack                          *CommandAck
	RedeliverUnacknowledgedMessages *CommandRedeliverUnacknowledgedMessages

	Send        *CommandSend
	SendReceipt *CommandSendReceipt
	SendError   *CommandSendError

	Message              *CommandMessage
	ActiveConsumerChange *CommandActiveConsumerChange
	ReachedEndOfTopic    *CommandReachedEndOfTopic
}

func (c *BaseCommand) GetType() BaseCommand_Type {
	if c == nil || c.Type == nil {
		return BaseCommand_Type(0)
	}
	return *c.Type
}

func (c *BaseCommand) GetConnected() *CommandConnected {
	if c == nil {
		return nil
	}
	return c.Connected
}

func (c *BaseCommand) GetError() *CommandError {
	if c == nil {
		return nil
	}
	return c.Error
}

func (c *BaseCommand) GetSendReceipt() *CommandSendReceipt {
	if c == nil {
		return nil
	}
	return c.SendReceipt
}

func (c *BaseCommand) GetSendError() *CommandSendError {
	if c == nil {
		return nil
	}
	return c.SendError
}

