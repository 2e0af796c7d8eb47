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

package diagnostics

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func TestNewTracer_NoSuchInterface(t *testing.T) {
	_, err := NewTracer("no-such-interface-xyz")
	if err == nil {
		t.Fatal("expected opening a nonexistent interface to fail")
	}
}

func TestLogPacket_IgnoresNonTCP(t *testing.T) {
	tr := &Tracer{done: make(chan struct{})}
	udp := gopacket.NewPacket([]byte{0x45, 0x00, 0x00, 0x14}, layers.LayerTypeIPv4, gopacket.Default)
	tr.logPacket(udp) // must not panic when there's no TCP layer to inspect
}

func TestLogPacket_SYNAndRST(t *testing.T) {
	tr := &Tracer{done: make(chan struct{})}

	syn := serializeTCP(t, &layers.TCP{SrcPort: 6650, DstPort: 54321, SYN: true})
	tr.logPacket(syn)

	rst := serializeTCP(t, &layers.TCP{SrcPort: 6650, DstPort: 54321, RST: true})
	tr.logPacket(rst)
}

func serializeTCP(t *testing.T, tcp *layers.TCP) gopacket.Packet {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	if err := tcp.SerializeTo(buf, gopacket.SerializeOptions{}); err != nil {
		t.Fatalf("serialize TCP layer: %v", err)
	}
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeTCP, gopacket.Default)
}
