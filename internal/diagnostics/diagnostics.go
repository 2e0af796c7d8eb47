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

// Package diagnostics is an optional, best-effort packet trace used to
// debug flaky handshakes on CI networks. It is never on the data path:
// a Tracer that fails to start (missing capture privileges, no such
// interface) logs one warning and is otherwise a no-op.
package diagnostics

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/relaypulsar/pulsar-client-go/pkg/log"
)

const (
	snapLen = 256
	timeout = time.Second
)

// Tracer captures TCP handshake packets on one interface, filtered down
// to pulsar's plain/TLS ports, and logs SYN and RST packets.
type Tracer struct {
	handle *pcap.Handle
	done   chan struct{}
}

// NewTracer opens iface for live capture and starts logging in the
// background. A non-nil error means capture could not start at all; the
// caller should log it and continue without tracing — connection
// establishment must never depend on this succeeding.
func NewTracer(iface string) (*Tracer, error) {
	handle, err := pcap.OpenLive(iface, snapLen, true, timeout)
	if err != nil {
		return nil, err
	}
	if err := handle.SetBPFFilter("tcp port 6650 or tcp port 6651"); err != nil {
		log.Warnf("diagnostics: BPF filter rejected, capturing unfiltered: %v", err)
	}

	t := &Tracer{handle: handle, done: make(chan struct{})}
	go t.run()
	return t, nil
}

func (t *Tracer) run() {
	src := gopacket.NewPacketSource(t.handle, t.handle.LinkType())
	for {
		select {
		case <-t.done:
			return
		case pkt, ok := <-src.Packets():
			if !ok {
				return
			}
			t.logPacket(pkt)
		}
	}
}

func (t *Tracer) logPacket(pkt gopacket.Packet) {
	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return
	}
	tcp, ok := tcpLayer.(*layers.TCP)
	if !ok {
		return
	}
	switch {
	case tcp.SYN && !tcp.ACK:
		log.Debugf("diagnostics: SYN %d -> %d", tcp.SrcPort, tcp.DstPort)
	case tcp.RST:
		log.Warnf("diagnostics: RST %d -> %d", tcp.SrcPort, tcp.DstPort)
	}
}

// Stop ends capture. Safe to call once.
func (t *Tracer) Stop() {
	close(t.done)
	t.handle.Close()
}
