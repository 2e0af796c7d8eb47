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

import "sync/atomic"

// SerialID is a concurrent, lock-free, monotonic 64-bit counter used to
// mint request ids for correlation. Wraparound is not defended against:
// 2^64 values is more than any connection will live long enough to use.
type SerialID struct {
	counter *uint64
}

// NewSerialID returns a generator starting at zero.
func NewSerialID() SerialID {
	var c uint64
	return SerialID{counter: &c}
}

// Next returns the current value then increments it. Safe for concurrent
// use by any number of callers sharing the same SerialID (copying the
// struct shares the underlying counter, same as cloning an Arc).
func (s SerialID) Next() uint64 {
	return atomic.AddUint64(s.counter, 1) - 1
}
