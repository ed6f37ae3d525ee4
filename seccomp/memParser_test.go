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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMemParser fakes a guest address space with byte segments planted at
// fixed addresses. Reads past a segment observe zero bytes; reads at
// unplanted addresses fault.
type fakeMemParser struct {
	segments map[uint64][]byte
	written  map[uint64][]byte
}

func newFakeMemParser() *fakeMemParser {
	return &fakeMemParser{
		segments: make(map[uint64][]byte),
		written:  make(map[uint64][]byte),
	}
}

func (mp *fakeMemParser) plant(addr uint64, data []byte) {
	mp.segments[addr] = data
}

func (mp *fakeMemParser) ReadBytes(pid uint32, addr uint64, size int) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}

	seg, ok := mp.segments[addr]
	if !ok {
		return nil, ErrMemBadAddress
	}

	buf := make([]byte, size)
	copy(buf, seg)

	return buf, nil
}

func (mp *fakeMemParser) WriteBytes(pid uint32, addr uint64, data []byte) error {
	if _, ok := mp.segments[addr]; !ok {
		return ErrMemBadAddress
	}
	mp.written[addr] = append([]byte(nil), data...)
	return nil
}

func TestReadStringTerminated(t *testing.T) {
	mp := newFakeMemParser()
	mp.plant(0x1000, append([]byte("/tmp/test.txt"), 0))

	s, err := readString(mp, 100, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.txt", s)
}

// An un-terminated 256-byte region yields a 256-byte result, never a
// buffer overrun.
func TestReadStringTruncation(t *testing.T) {
	mp := newFakeMemParser()
	mp.plant(0x1000, bytes.Repeat([]byte{'a'}, 512))

	s, err := readString(mp, 100, 0x1000)
	require.NoError(t, err)
	assert.Len(t, s, memParserStrMax)
	assert.Equal(t, strings.Repeat("a", memParserStrMax), s)
}

func TestReadStringBadAddress(t *testing.T) {
	mp := newFakeMemParser()

	_, err := readString(mp, 100, 0xdead)
	assert.ErrorIs(t, err, ErrMemBadAddress)
}

func TestReadUint64(t *testing.T) {
	mp := newFakeMemParser()
	mp.plant(0x2000, []byte{0x39, 0x30, 0, 0, 0, 0, 0, 0})

	v, err := readUint64(mp, 100, 0x2000)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), v)
}
