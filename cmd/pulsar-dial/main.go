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

// Command pulsar-dial dials a broker, performs the handshake, sends one
// ping, and exits. It exists to exercise core/conn.New end to end from a
// real binary rather than only from tests.
package main

import (
	"context"
	"crypto/x509"
	"flag"
	"os"
	"time"

	"github.com/relaypulsar/pulsar-client-go/core/conn"
	"github.com/relaypulsar/pulsar-client-go/core/executor"
	"github.com/relaypulsar/pulsar-client-go/internal/config"
	"github.com/relaypulsar/pulsar-client-go/pkg/log"
)

func main() {
	configPath := flag.String("config", "", "path to a pulsar-client.toml config file")
	url := flag.String("url", "pulsar://localhost:6650", "broker URL (overridden by -config's url, if set)")
	timeout := flag.Duration("timeout", 10*time.Second, "dial + handshake timeout")
	flag.Parse()

	cfg := config.Config{URL: *url}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Errorf("pulsar-dial: loading config: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logFormat := log.FormatConsole
	if cfg.Log.Format == "ecs" {
		logFormat = log.FormatECS
	}
	log.Configure(log.Options{Format: logFormat, RotateFile: cfg.Log.File})

	opts := conn.Options{ProxyToBrokerURL: cfg.ProxyToBrokerURL}
	if cfg.Executor.BlockingWorkers > 0 {
		opts.Executor = executor.NewGoroutineExecutor(cfg.Executor.BlockingWorkers)
	}
	if cfg.Auth.Name != "" {
		opts.Auth = &conn.Authentication{Name: cfg.Auth.Name, Data: []byte(cfg.Auth.Data)}
	}
	if cfg.CertificateChain != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(cfg.CertificateChain)) {
			opts.RootCAs = pool
		} else {
			log.Warnf("pulsar-dial: certificate_chain did not contain any usable certificates")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, cerr := conn.New(ctx, cfg.URL, opts)
	if cerr != nil {
		log.Errorf("pulsar-dial: connect to %s: %v", cfg.URL, cerr)
		os.Exit(1)
	}
	defer c.Close()

	log.Infof("pulsar-dial: connected to %s (id=%d)", c.URL(), c.ID())

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if cerr := c.Sender().SendPing(pingCtx); cerr != nil {
		log.Errorf("pulsar-dial: ping failed: %v", cerr)
		os.Exit(1)
	}
	log.Infof("pulsar-dial: ping/pong round trip ok")
}
