//
// Copyright 2026 The bvisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package seccomp

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Bounds on guest-memory transfers per syscall.
const (
	// Longest null-terminated string the bridge reads. A longer region is
	// truncated at the bound, never overrun.
	memParserStrMax = 256

	// Largest single read/write data transfer.
	memParserChunkMax = 4096
)

// Distinct failure kinds surfaced by the memory bridge.
var (
	ErrMemBadAddress  = errors.New("invalid guest address")
	ErrMemShortCopy   = errors.New("short guest-memory copy")
	ErrMemProcessGone = errors.New("guest process vanished")
)

// memParser reaches across address spaces: it reads and writes bytes in a
// guest process' memory given its kernel pid and a virtual address.
type memParser interface {
	ReadBytes(pid uint32, addr uint64, size int) ([]byte, error)
	WriteBytes(pid uint32, addr uint64, data []byte) error
}

// readString reads a null-terminated string of at most memParserStrMax
// bytes at addr. A missing terminator within the bound truncates to the
// bound.
func readString(mp memParser, pid uint32, addr uint64) (string, error) {
	buf, err := mp.ReadBytes(pid, addr, memParserStrMax)
	if err != nil {
		return "", err
	}

	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}

	return string(buf), nil
}

// readUint64 reads one little-endian 64-bit word at addr.
func readUint64(mp memParser, pid uint32, addr uint64) (uint64, error) {
	buf, err := mp.ReadBytes(pid, addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}
