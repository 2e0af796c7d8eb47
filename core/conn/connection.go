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
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/url"
	"sync"

	"github.com/relaypulsar/pulsar-client-go/core/executor"
	"github.com/relaypulsar/pulsar-client-go/core/frame"
	"github.com/relaypulsar/pulsar-client-go/internal/diagnostics"
	"github.com/relaypulsar/pulsar-client-go/pkg/api"
	"github.com/relaypulsar/pulsar-client-go/pkg/log"
)

// Options configures New. Executor defaults to a package-owned
// executor.GoroutineExecutor if left nil.
type Options struct {
	Auth             *Authentication
	ProxyToBrokerURL string
	// RootCAs preloads the TLS connector's trust store for pulsar+ssl
	// URLs; nil uses the host's default trust store.
	RootCAs *x509.CertPool
	Executor executor.Executor
	// TraceIface, if set, starts a best-effort diagnostics.Tracer on the
	// named interface for the life of the Connection. Left empty,
	// nothing is captured. A failure to start tracing (missing capture
	// privileges, no such interface) only logs a warning; it never
	// fails the dial.
	TraceIface string
}

// Connection is the caller-visible handle a successful bootstrap
// returns: an identity for logging, the URL it was dialed from, and the
// ConnectionSender used for every subsequent operation. Closing it fires
// shutdown, per spec.md section 4.6 step 8.
type Connection struct {
	id        int64
	url       string
	sender    ConnectionSender
	sharedErr SharedError
	outbound  *unboundedQueue[frame.Message]
	tracer    *diagnostics.Tracer

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// ID returns the random identity assigned at dial time, for logging only.
func (c *Connection) ID() int64 { return c.id }

// URL returns the URL this connection was dialed from.
func (c *Connection) URL() string { return c.url }

// Sender returns the caller-facing handle for issuing requests.
func (c *Connection) Sender() ConnectionSender { return c.sender }

// IsValid reports whether the connection is still believed healthy.
func (c *Connection) IsValid() bool { return !c.sharedErr.IsSet() }

// Error consumes and returns whatever error invalidated the connection,
// if any.
func (c *Connection) Error() *ConnectionError { return c.sharedErr.Take() }

// Close fires the shutdown signal: the Receiver exits immediately, and
// the Writer drains whatever remains queued before exiting once the
// outbound queue closes. Safe to call more than once.
//
// The Rust original closes the outbound channel by reference-counted
// Drop once every ConnectionSender clone has gone away; Go has no
// equivalent of that, so this is the deliberate stand-in — the queue is
// closed explicitly, tied to the Connection's own lifetime rather than
// its senders'.
func (c *Connection) Close() error {
	c.shutdownOnce.Do(func() {
		close(c.shutdown)
		c.outbound.Close()
		if c.tracer != nil {
			c.tracer.Stop()
		}
	})
	return nil
}

// New dials rawURL, performs the CONNECT/CONNECTED handshake, and spawns
// the Receiver and Writer tasks, per the bootstrap procedure in
// spec.md section 4.6.
func New(ctx context.Context, rawURL string, opts Options) (*Connection, *ConnectionError) {
	exec := opts.Executor
	if exec == nil {
		exec = executor.NewGoroutineExecutor(0)
	}

	host, port, useTLS, cerr := parseURL(rawURL)
	if cerr != nil {
		return nil, cerr
	}

	addr, cerr := resolveOne(ctx, exec, host, port)
	if cerr != nil {
		return nil, cerr
	}

	rawConn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errIO(err)
	}

	var transport net.Conn = rawConn
	if useTLS {
		tlsConn := tls.Client(rawConn, &tls.Config{
			ServerName: host, // SNI uses the original hostname, never the resolved IP
			RootCAs:    opts.RootCAs,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			rawConn.Close()
			return nil, errTLS(err)
		}
		transport = tlsConn
	}

	framed := frame.NewFramedConn(transport)

	if err := framed.Send(connectMessage(opts.Auth, opts.ProxyToBrokerURL)); err != nil {
		framed.Close()
		return nil, errIO(err)
	}

	resp, err := framed.Recv()
	if err != nil {
		framed.Close()
		if errors.Is(err, io.EOF) {
			return nil, errDisconnected()
		}
		return nil, errIO(err)
	}
	if cerr := checkHandshakeResponse(resp); cerr != nil {
		framed.Close()
		return nil, cerr
	}
	log.Debugf("connection: handshake complete with %s", addr)

	var tracer *diagnostics.Tracer
	if opts.TraceIface != "" {
		t, err := diagnostics.NewTracer(opts.TraceIface)
		if err != nil {
			log.Warnf("connection: packet trace disabled: %v", err)
		} else {
			tracer = t
		}
	}

	outbound := newUnboundedQueue[frame.Message]()
	registrations := newUnboundedQueue[frame.Register]()
	sharedErr := NewSharedError()
	shutdown := make(chan struct{})
	done := make(chan struct{})
	var doneOnce sync.Once
	closeDone := func() { doneOnce.Do(func() { close(done) }) }

	recv := newReceiver(framed, outbound, registrations, sharedErr, shutdown, framed.Close, closeDone)
	wr := newWriter(framed, outbound.Out(), sharedErr)

	if err := exec.Spawn(recv.run); err != nil {
		framed.Close()
		if tracer != nil {
			tracer.Stop()
		}
		return nil, errShutdown()
	}
	if err := exec.Spawn(wr.run); err != nil {
		framed.Close()
		close(shutdown)
		if tracer != nil {
			tracer.Stop()
		}
		return nil, errShutdown()
	}

	sender := ConnectionSender{
		outbound:      outbound,
		registrations: registrations,
		serial:        NewSerialID(),
		sharedErr:     sharedErr,
		done:          done,
	}

	return &Connection{
		id:        rand.Int63(),
		url:       rawURL,
		sender:    sender,
		sharedErr: sharedErr,
		outbound:  outbound,
		tracer:    tracer,
		shutdown:  shutdown,
	}, nil
}

func parseURL(rawURL string) (host, port string, useTLS bool, err *ConnectionError) {
	u, perr := url.Parse(rawURL)
	if perr != nil {
		return "", "", false, errNotFound()
	}

	var defaultPort string
	switch u.Scheme {
	case "pulsar":
		useTLS = false
		defaultPort = "6650"
	case "pulsar+ssl":
		useTLS = true
		defaultPort = "6651"
	default:
		return "", "", false, errNotFound()
	}

	host = u.Hostname()
	if host == "" {
		return "", "", false, errNotFound()
	}
	port = u.Port()
	if port == "" {
		port = defaultPort
	}
	return host, port, useTLS, nil
}

// resolveOne resolves host on a blocking-capable executor slot and picks
// uniformly at random among the results, spreading load across multi-A
// records per spec.md section 4.6 step 2.
func resolveOne(ctx context.Context, exec executor.Executor, host, port string) (string, *ConnectionError) {
	resultCh := exec.SpawnBlocking(func() interface{} {
		addrs, err := net.DefaultResolver.LookupHost(ctx, host)
		if err != nil {
			return err
		}
		if len(addrs) == 0 {
			return fmt.Errorf("no addresses found for %s", host)
		}
		return addrs
	})

	select {
	case v := <-resultCh:
		switch r := v.(type) {
		case error:
			return "", errNotFound()
		case []string:
			picked := r[rand.Intn(len(r))]
			return net.JoinHostPort(picked, port), nil
		default:
			return "", errNotFound()
		}
	case <-ctx.Done():
		return "", errUnexpected("%v", ctx.Err())
	}
}

func checkHandshakeResponse(resp frame.Message) *ConnectionError {
	if resp.Command == nil {
		return errUnexpected("handshake: empty frame")
	}
	switch resp.Command.GetType() {
	case api.BaseCommand_ERROR:
		e := resp.Command.Error
		return errPulsar(e.GetError(), e.GetMessage())
	case api.BaseCommand_CONNECTED:
		return nil
	default:
		return errUnexpected("handshake: unexpected frame type %s", resp.Command.GetType())
	}
}
