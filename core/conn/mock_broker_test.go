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
	"net"
	"testing"

	"github.com/relaypulsar/pulsar-client-go/core/frame"
	"github.com/relaypulsar/pulsar-client-go/pkg/api"
)

// newMockBroker returns the client-side net.Conn of an in-memory pipe
// whose server side performs the CONNECT/CONNECTED handshake and then
// hands every subsequent frame to handle (run on its own goroutine).
// PING frames are answered with PONG automatically so tests don't each
// need to special-case keep-alive.
func newMockBroker(t *testing.T, handle func(send func(frame.Message), msg frame.Message)) net.Conn {
	t.Helper()
	client, server := net.Pipe()

	go func() {
		sf := frame.NewFramedConn(server)
		defer sf.Close()

		connect, err := sf.Recv()
		if err != nil {
			return
		}
		if connect.Command.GetType() != api.BaseCommand_CONNECT {
			return
		}
		_ = sf.Send(frame.Message{
			Command: &api.BaseCommand{
				Type:      api.BaseCommand_CONNECTED.Enum(),
				Connected: &api.CommandConnected{ServerVersion: "mock-broker"},
			},
		})

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

	return client
}

// newMockBrokerRejectingHandshake refuses the CONNECT with an ERROR
// frame, for testing handshake failure handling.
func newMockBrokerRejectingHandshake(t *testing.T, serverErr api.ServerError, message string) net.Conn {
	t.Helper()
	client, server := net.Pipe()

	go func() {
		sf := frame.NewFramedConn(server)
		defer sf.Close()
		if _, err := sf.Recv(); err != nil {
			return
		}
		_ = sf.Send(frame.Message{
			Command: &api.BaseCommand{
				Type:  api.BaseCommand_ERROR.Enum(),
				Error: &api.CommandError{Error: serverErr, Message: message},
			},
		})
	}()

	return client
}
