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
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/bvisor/bvisor/domain"
)

// Virtual fds 0-2 belong to the guest's real stdio and are never allocated
// by the table.
const firstVirtualFd = 3

// Hard cap on live entries per table.
const maxTableEntries = 1024

// fdTable is a refcounted map from virtual fd to open file. The fd
// allocator is monotonic: removal never renumbers and released numbers are
// not re-issued.
type fdTable struct {
	entries map[int32]domain.FileIface
	nextFd  int32
	refs    int
}

func NewFdTable() domain.FDTableIface {
	return &fdTable{
		entries: make(map[int32]domain.FileIface),
		nextFd:  firstVirtualFd,
		refs:    1,
	}
}

func (t *fdTable) Ref() {
	t.refs++
}

func (t *fdTable) Unref() {
	t.refs--
	if t.refs > 0 {
		return
	}
	if t.refs < 0 {
		logrus.Fatalf("Fd-table refcount underflow (%d)", t.refs)
	}

	// Files still present at this point are leaked: closure is the caller's
	// responsibility (CloseAll before the last Unref).
	if len(t.entries) > 0 {
		logrus.Warnf("Fd-table released with %d unclosed entries", len(t.entries))
	}
	t.entries = nil
}

func (t *fdTable) Refs() int {
	return t.refs
}

// Clone deep-copies the table: same entries by value, fresh refcount. The
// next-fd counter is inherited, so neither table allocates a number held by
// an inherited entry; both tables then issue the same fd for their first
// post-clone allocation. Tables are per-process, so the duplicated
// numbering is invisible across them.
func (t *fdTable) Clone() domain.FDTableIface {
	dup := &fdTable{
		entries: make(map[int32]domain.FileIface, len(t.entries)),
		nextFd:  t.nextFd,
		refs:    1,
	}
	for vfd, f := range t.entries {
		dup.entries[vfd] = f
	}
	return dup
}

func (t *fdTable) Insert(f domain.FileIface) (int32, error) {
	if len(t.entries) >= maxTableEntries {
		return -1, syscall.EMFILE
	}

	vfd := t.nextFd
	t.nextFd++
	t.entries[vfd] = f

	return vfd, nil
}

func (t *fdTable) Get(vfd int32) (domain.FileIface, bool) {
	f, ok := t.entries[vfd]
	return f, ok
}

// Remove drops the entry without closing it; the caller owns closure.
func (t *fdTable) Remove(vfd int32) bool {
	if _, ok := t.entries[vfd]; !ok {
		return false
	}
	delete(t.entries, vfd)
	return true
}

// CloseAll closes and drops every entry. Used on exit_group teardown,
// before the last table reference is released.
func (t *fdTable) CloseAll() {
	for vfd, f := range t.entries {
		if err := f.Close(); err != nil {
			logrus.Debugf("Error closing vfd %d (%s backend): %v",
				vfd, f.Backend(), err)
		}
		delete(t.entries, vfd)
	}
}

func (t *fdTable) Len() int {
	return len(t.entries)
}
