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
	"bytes"
	"io"
	"net"
	"sync"

	"github.com/relaypulsar/pulsar-client-go/pkg/api"
)

// toFrame flattens a Message into the wire Frame it corresponds to.
func toFrame(m Message) *Frame {
	f := &Frame{BaseCmd: m.Command}
	if m.Payload != nil {
		f.Metadata = m.Payload.Metadata
		f.Payload = m.Payload.Data
	}
	return f
}

// fromFrame lifts a decoded wire Frame back into a Message.
func fromFrame(f *Frame) Message {
	m := Message{Command: f.BaseCmd}
	if f.Metadata != nil {
		m.Payload = &Payload{Metadata: f.Metadata, Data: f.Payload}
	}
	return m
}

// Codec adapts a raw, ordered byte stream (net.Conn and friends) into the
// Stream<Message>/Sink<Message> pair the connection core is built against.
// It is the concrete stand-in for the "wire codec" the spec lists as an
// external collaborator.
type Codec struct{}

// FramedConn is a Codec bound to one underlying connection, split into
// independent read/write halves so the Receiver and Writer tasks can own
// one each without a socket-level lock, per the spec's concurrency model.
type FramedConn struct {
	conn net.Conn

	writeMu sync.Mutex // serializes concurrent Send calls from Writer (always one writer in practice, kept for safety)
}

// NewFramedConn wraps conn with the pulsar frame Codec.
func NewFramedConn(conn net.Conn) *FramedConn {
	return &FramedConn{conn: conn}
}

// Recv blocks until the next frame is decoded off the wire, or an error
// (including io.EOF on orderly close) occurs.
func (fc *FramedConn) Recv() (Message, error) {
	var f Frame
	if err := f.Decode(fc.conn); err != nil {
		return Message{}, err
	}
	return fromFrame(&f), nil
}

// Send encodes m into a pooled buffer and writes it to the wire in a
// single call, rather than the several small Write calls Frame.Encode
// would otherwise issue directly against the socket. Safe for concurrent
// use, though the connection core never calls it concurrently (the
// Writer task is the sole caller).
func (fc *FramedConn) Send(m Message) error {
	f := toFrame(m)

	var buf *bytes.Buffer
	if smallCmdType(f.BaseCmd.GetType()) {
		buf = getSmallBuf()
		defer putSmallBuf(buf)
	} else {
		buf = getBuf()
		defer putBuf(buf)
	}

	if err := f.Encode(buf); err != nil {
		return err
	}

	fc.writeMu.Lock()
	defer fc.writeMu.Unlock()
	_, err := buf.WriteTo(fc.conn)
	return err
}

// Buffer pooling for Send: most frames (pings, acks, flow, lookups,
// subscribes) are small and frequent, while send/message payload frames
// can run up to MaxFrameSize. Two pools sized for each case avoid both
// over-allocating for the common case and repeatedly growing a
// too-small buffer for the large one. Each pool's companion semaphore
// channel caps how many buffers can be checked out at once, bounding
// worst-case memory under a write burst.
const (
	bufSize       = 5 * 1024
	bufLimit      = 50
	smallBufSize  = 500
	smallBufLimit = 1000
)

var bufPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, bufSize))
	},
}

var bufSem = make(chan struct{}, bufLimit)

func getBuf() *bytes.Buffer {
	bufSem <- struct{}{}
	b := bufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

func putBuf(b *bytes.Buffer) {
	bufPool.Put(b)
	<-bufSem
}

var smallBufPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, smallBufSize))
	},
}

var smallBufSem = make(chan struct{}, smallBufLimit)

func getSmallBuf() *bytes.Buffer {
	smallBufSem <- struct{}{}
	b := smallBufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

func putSmallBuf(b *bytes.Buffer) {
	smallBufPool.Put(b)
	<-smallBufSem
}

func smallCmdType(t api.BaseCommand_Type) bool {
	switch t {
	case api.BaseCommand_PING, api.BaseCommand_PONG, api.BaseCommand_ACK,
		api.BaseCommand_CONNECT, api.BaseCommand_FLOW, api.BaseCommand_SUBSCRIBE,
		api.BaseCommand_LOOKUP:
		return true
	default:
		return false
	}
}

// Close closes the underlying connection. Safe to call once Recv has
// returned an error; subsequent Recv/Send calls will themselves error.
func (fc *FramedConn) Close() error {
	return fc.conn.Close()
}

var _ io.Closer = (*FramedConn)(nil)
