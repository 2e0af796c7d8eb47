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

// Package config loads the bootstrap configuration a Connection is
// built from, from a TOML file.
package config

import (
	"github.com/BurntSushi/toml"
)

// Config is the file-backed shape of everything core/conn.Options needs
// plus logging setup. Field names match the TOML keys verbatim.
type Config struct {
	URL              string `toml:"url"`
	ProxyToBrokerURL string `toml:"proxy_to_broker_url"`

	Auth struct {
		Name string `toml:"name"`
		Data string `toml:"data"`
	} `toml:"auth"`

	// CertificateChain is a PEM-encoded root CA bundle trusted for
	// pulsar+ssl connections, in place of the host's default trust store.
	CertificateChain string `toml:"certificate_chain"`

	Executor struct {
		// BlockingWorkers bounds how many OS threads GoroutineExecutor
		// uses for SpawnBlocking jobs (DNS lookups, etc).
		BlockingWorkers int `toml:"blocking_workers"`
	} `toml:"executor"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"` // "console" (default) or "ecs"
		File   string `toml:"file"`   // rotated via lumberjack when set
	} `toml:"log"`
}

// Load parses the TOML file at path into a Config.
func Load(path string) (Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}
