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

import "github.com/relaypulsar/pulsar-client-go/pkg/api"

// Authentication carries the optional CONNECT-time credential.
type Authentication struct {
	Name string
	Data []byte
}

// ProducerOptions configures a CommandProducer registration.
type ProducerOptions struct {
	Encrypted *bool
	Metadata  map[string]string
	Schema    []byte
}

// ConsumerOptions configures a CommandSubscribe registration.
type ConsumerOptions struct {
	PriorityLevel   *int32
	Durable         *bool
	Metadata        map[string]string
	ReadCompacted   *bool
	InitialPosition *api.InitialPosition
	Schema          []byte
	StartMessageID  *api.MessageIdData
}
