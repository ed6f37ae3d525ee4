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

package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvisor/bvisor/domain"
)

// testFile is a minimal open-file stand-in recording closure.
type testFile struct {
	closed bool
}

func (f *testFile) Read(p []byte) (int, error)  { return 0, nil }
func (f *testFile) Write(p []byte) (int, error) { return len(p), nil }
func (f *testFile) Close() error                { f.closed = true; return nil }
func (f *testFile) Backend() domain.Backend     { return domain.BackendTmp }
func (f *testFile) Path() string                { return "/tmp/test" }

func TestFdTableAllocation(t *testing.T) {
	tbl := NewFdTable()

	vfd1, err := tbl.Insert(&testFile{})
	require.NoError(t, err)
	vfd2, err := tbl.Insert(&testFile{})
	require.NoError(t, err)
	vfd3, err := tbl.Insert(&testFile{})
	require.NoError(t, err)

	// Allocation starts at 3 and increases monotonically.
	assert.Equal(t, int32(3), vfd1)
	assert.Equal(t, int32(4), vfd2)
	assert.Equal(t, int32(5), vfd3)

	// Removal never renumbers: the freed number is not re-issued.
	assert.True(t, tbl.Remove(vfd2))
	vfd4, err := tbl.Insert(&testFile{})
	require.NoError(t, err)
	assert.Equal(t, int32(6), vfd4)

	_, ok := tbl.Get(vfd2)
	assert.False(t, ok)
	_, ok = tbl.Get(vfd1)
	assert.True(t, ok)

	assert.False(t, tbl.Remove(vfd2))
	assert.Equal(t, 3, tbl.Len())
}

// Remove never closes the file; closure is the caller's responsibility.
func TestFdTableRemoveDoesNotClose(t *testing.T) {
	tbl := NewFdTable()
	f := &testFile{}

	vfd, err := tbl.Insert(f)
	require.NoError(t, err)

	assert.True(t, tbl.Remove(vfd))
	assert.False(t, f.closed)
}

func TestFdTableClone(t *testing.T) {
	tbl := NewFdTable()

	vfd1, _ := tbl.Insert(&testFile{})
	vfd2, _ := tbl.Insert(&testFile{})

	dup := tbl.Clone()

	// Same entries by value.
	for _, vfd := range []int32{vfd1, vfd2} {
		orig, ok := tbl.Get(vfd)
		require.True(t, ok)
		copied, ok := dup.Get(vfd)
		require.True(t, ok)
		assert.Same(t, orig, copied)
	}

	// The next-fd counter is inherited: both tables issue the same fd for
	// their first post-clone allocation, past every inherited entry.
	origNext, err := tbl.Insert(&testFile{})
	require.NoError(t, err)
	dupNext, err := dup.Insert(&testFile{})
	require.NoError(t, err)
	assert.Equal(t, origNext, dupNext)

	// Post-clone mutations stay private.
	assert.True(t, dup.Remove(vfd1))
	_, ok := tbl.Get(vfd1)
	assert.True(t, ok)
}

func TestFdTableCloseAll(t *testing.T) {
	tbl := NewFdTable()

	files := []*testFile{{}, {}, {}}
	for _, f := range files {
		_, err := tbl.Insert(f)
		require.NoError(t, err)
	}

	tbl.CloseAll()

	assert.Equal(t, 0, tbl.Len())
	for _, f := range files {
		assert.True(t, f.closed)
	}
}

func TestFdTableRefcount(t *testing.T) {
	tbl := NewFdTable()
	assert.Equal(t, 1, tbl.Refs())

	tbl.Ref()
	assert.Equal(t, 2, tbl.Refs())

	tbl.Unref()
	assert.Equal(t, 1, tbl.Refs())

	// Still usable until the last reference goes away.
	_, err := tbl.Insert(&testFile{})
	assert.NoError(t, err)

	tbl.CloseAll()
	tbl.Unref()
	assert.Equal(t, 0, tbl.Refs())
}
