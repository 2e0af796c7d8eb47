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
	"github.com/relaypulsar/pulsar-client-go/core/frame"
	"github.com/relaypulsar/pulsar-client-go/pkg/log"
)

// Outbound is the write half of a framed connection. *frame.FramedConn
// satisfies it.
type Outbound interface {
	Send(frame.Message) error
}

// writer is the second of the two connection-owning tasks: it drains the
// outbound queue FIFO and writes each frame to the wire, serializing
// every concurrent caller's write without any of them blocking on the
// socket directly. It mirrors the Rust connection core's Writer future
// (spec.md section 4, "Writer").
type writer struct {
	out   Outbound
	queue <-chan frame.Message

	sharedErr SharedError
}

func newWriter(out Outbound, queue <-chan frame.Message, sharedErr SharedError) *writer {
	return &writer{out: out, queue: queue, sharedErr: sharedErr}
}

// run drains w.queue until it closes (Connection.Close closes it) or a
// write fails. A write failure latches
// sharedErr and stops the writer; it does not attempt to keep draining,
// since the socket is presumed unusable from that point on.
func (w *writer) run() {
	for msg := range w.queue {
		if err := w.out.Send(msg); err != nil {
			w.sharedErr.Set(errIO(err))
			return
		}
		log.Debugf("writer: sent %v", msg)
	}
}
