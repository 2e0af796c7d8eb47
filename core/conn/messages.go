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
	"time"

	"github.com/relaypulsar/pulsar-client-go/core/frame"
	"github.com/relaypulsar/pulsar-client-go/pkg/api"
)

// clientVersion is sent on every CONNECT frame. It intentionally matches
// the wire string real Pulsar brokers have been tolerant of since the
// 2.0.1 release, per the handshake contract in spec.md section 6.
const clientVersion = "2.0.1-incubating"

// messages mirrors the Rust connection core's `mod messages`: one pure
// constructor function per outbound command, kept separate from
// ConnectionSender so each command's shape can be unit tested in
// isolation and so the sender methods stay as thin as the original.

func connectMessage(auth *Authentication, proxyToBrokerURL string) frame.Message {
	cmd := &api.CommandConnect{
		ClientVersion:   clientVersion,
		ProtocolVersion: int32Ptr(api.ProtocolVersion),
	}
	if auth != nil {
		cmd.AuthMethodName = &auth.Name
		cmd.AuthData = auth.Data
	}
	if proxyToBrokerURL != "" {
		cmd.ProxyToBrokerUrl = &proxyToBrokerURL
	}
	return simpleMessage(api.BaseCommand_CONNECT, func(c *api.BaseCommand) { c.Connect = cmd })
}

func pingMessage() frame.Message {
	return simpleMessage(api.BaseCommand_PING, func(c *api.BaseCommand) { c.Ping = &api.CommandPing{} })
}

func pongMessage() frame.Message {
	return simpleMessage(api.BaseCommand_PONG, func(c *api.BaseCommand) { c.Pong = &api.CommandPong{} })
}

func lookupTopicMessage(topic string, authoritative bool, requestID uint64) frame.Message {
	return simpleMessage(api.BaseCommand_LOOKUP, func(c *api.BaseCommand) {
		c.LookupTopic = &api.CommandLookupTopic{
			Topic:         topic,
			RequestId:     requestID,
			Authoritative: &authoritative,
		}
	})
}

func lookupPartitionedTopicMessage(topic string, requestID uint64) frame.Message {
	return simpleMessage(api.BaseCommand_PARTITIONED_METADATA, func(c *api.BaseCommand) {
		c.PartitionMetadata = &api.CommandPartitionedTopicMetadata{
			Topic:     topic,
			RequestId: requestID,
		}
	})
}

func createProducerMessage(topic string, producerID, requestID uint64, producerName *string, opts ProducerOptions) frame.Message {
	return simpleMessage(api.BaseCommand_PRODUCER, func(c *api.BaseCommand) {
		c.Producer = &api.CommandProducer{
			Topic:        topic,
			ProducerId:   producerID,
			RequestId:    requestID,
			ProducerName: producerName,
			Encrypted:    opts.Encrypted,
			Metadata:     keyValues(opts.Metadata),
			Schema:       opts.Schema,
		}
	})
}

func getTopicsOfNamespaceMessage(requestID uint64, namespace string, mode api.GetTopicsMode) frame.Message {
	return simpleMessage(api.BaseCommand_GET_TOPICS_OF_NAMESPACE, func(c *api.BaseCommand) {
		c.GetTopicsOfNamespace = &api.CommandGetTopicsOfNamespace{
			RequestId: requestID,
			Namespace: namespace,
			Mode:      &mode,
		}
	})
}

func closeProducerMessage(producerID, requestID uint64) frame.Message {
	return simpleMessage(api.BaseCommand_CLOSE_PRODUCER, func(c *api.BaseCommand) {
		c.CloseProducer = &api.CommandCloseProducer{ProducerId: producerID, RequestId: requestID}
	})
}

func subscribeMessage(topic, subscription string, subType api.SubType, consumerID, requestID uint64, consumerName *string, opts ConsumerOptions) frame.Message {
	return simpleMessage(api.BaseCommand_SUBSCRIBE, func(c *api.BaseCommand) {
		c.Subscribe = &api.CommandSubscribe{
			Topic:           topic,
			Subscription:    subscription,
			SubType:         subType,
			ConsumerId:      consumerID,
			RequestId:       requestID,
			ConsumerName:    consumerName,
			PriorityLevel:   opts.PriorityLevel,
			Durable:         opts.Durable,
			Metadata:        keyValues(opts.Metadata),
			ReadCompacted:   opts.ReadCompacted,
			InitialPosition: opts.InitialPosition,
			Schema:          opts.Schema,
			StartMessageId:  opts.StartMessageID,
		}
	})
}

func flowMessage(consumerID uint64, permits uint32) frame.Message {
	return simpleMessage(api.BaseCommand_FLOW, func(c *api.BaseCommand) {
		c.Flow = &api.CommandFlow{ConsumerId: consumerID, MessagePermits: permits}
	})
}

func ackMessage(consumerID uint64, ids []api.MessageIdData, cumulative bool) frame.Message {
	ackType := api.AckType_Individual
	if cumulative {
		ackType = api.AckType_Cumulative
	}
	return simpleMessage(api.BaseCommand_ACK, func(c *api.BaseCommand) {
		c.Ack = &api.CommandAck{ConsumerId: consumerID, AckType: ackType, MessageId: ids}
	})
}

func redeliverUnackedMessage(consumerID uint64, ids []api.MessageIdData) frame.Message {
	return simpleMessage(api.BaseCommand_REDELIVER_UNACKNOWLEDGED_MESSAGES, func(c *api.BaseCommand) {
		c.RedeliverUnacknowledgedMessages = &api.CommandRedeliverUnacknowledgedMessages{
			ConsumerId: consumerID,
			MessageIds: ids,
		}
	})
}

func closeConsumerMessage(consumerID, requestID uint64) frame.Message {
	return simpleMessage(api.BaseCommand_CLOSE_CONSUMER, func(c *api.BaseCommand) {
		c.CloseConsumer = &api.CommandCloseConsumer{ConsumerId: consumerID, RequestId: requestID}
	})
}

// sendMessage builds the CommandSend + payload envelope for a publish.
// num_messages_in_batch is always 1 here: batching policy lives in the
// higher Producer layer, out of scope for this core per spec.md section 1.
func sendMessage(producerID, sequenceID uint64, producerName string, payload []byte, properties map[string]string) frame.Message {
	numMessages := int32(1)
	return frame.Message{
		Command: &api.BaseCommand{
			Type: api.BaseCommand_SEND.Enum(),
			Send: &api.CommandSend{
				ProducerId:  producerID,
				SequenceId:  sequenceID,
				NumMessages: &numMessages,
			},
		},
		Payload: &frame.Payload{
			Metadata: &api.MessageMetadata{
				ProducerName: producerName,
				SequenceId:   sequenceID,
				PublishTime:  uint64(time.Now().UnixMilli()),
				Properties:   keyValues(properties),
				Compression:  api.CompressionType_NONE.Enum(),
			},
			Data: payload,
		},
	}
}

func simpleMessage(t api.BaseCommand_Type, set func(*api.BaseCommand)) frame.Message {
	cmd := &api.BaseCommand{Type: t.Enum()}
	set(cmd)
	return frame.Message{Command: cmd}
}

func keyValues(m map[string]string) []api.KeyValue {
	if len(m) == 0 {
		return nil
	}
	kvs := make([]api.KeyValue, 0, len(m))
	for k, v := range m {
		kvs = append(kvs, api.KeyValue{Key: k, Value: v})
	}
	return kvs
}

func int32Ptr(v int32) *int32 { return &v }
