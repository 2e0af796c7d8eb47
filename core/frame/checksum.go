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

import "hash/crc32"

// frameChecksum incrementally computes the CRC32-C checksum that follows
// the magic number in a "payload" frame. It's written to directly by
// Frame.Encode and via an io.TeeReader in Frame.Decode, so it only needs
// to implement io.Writer.
type frameChecksum struct {
	crc uint32
	set bool
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func (c *frameChecksum) Write(p []byte) (int, error) {
	if !c.set {
		c.crc = crc32.Checksum(p, castagnoli)
		c.set = true
	} else {
		c.crc = crc32.Update(c.crc, castagnoli, p)
	}
	return len(p), nil
}

func (c *frameChecksum) compute() []byte {
	return []byte{
		byte(c.crc >> 24),
		byte(c.crc >> 16),
		byte(c.crc >> 8),
		byte(c.crc),
	}
}
