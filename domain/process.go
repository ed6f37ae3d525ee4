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

package domain

import "golang.org/x/sys/unix"

// Clone-flag subset the registry cares about when building a child's view.
const (
	CloneNewPid = unix.CLONE_NEWPID
	CloneFiles  = unix.CLONE_FILES
)

// ProcessIface is one virtual guest process: the supervisor-visible kernel
// pid plus the views (fd-table, pid-namespace) the guest observes through it.
type ProcessIface interface {
	Pid() uint32
	Parent() ProcessIface
	Namespace() NamespaceIface
	FdTable() FDTableIface
}

// NamespaceIface is a refcounted visibility set of virtual processes,
// optionally chained to a parent namespace. A process registered here is
// also registered in every ancestor, each assigning an independent ns-pid.
type NamespaceIface interface {
	Ref()
	Unref()

	Parent() NamespaceIface
	Register(p ProcessIface, root bool)
	Unregister(p ProcessIface)
	Contains(p ProcessIface) bool
	NsPid(p ProcessIface) (uint32, bool)

	// Resolve maps a namespace-relative pid back to the process it names,
	// searching this namespace's own members and those of its descendants.
	Resolve(nsPid uint32) (ProcessIface, bool)
}

// FDTableIface is a refcounted map from virtual fd to open file. Virtual
// fds start at 3 and are allocated monotonically; removal never renumbers.
type FDTableIface interface {
	Ref()
	Unref()
	Refs() int

	Clone() FDTableIface
	Insert(f FileIface) (int32, error)
	Get(vfd int32) (FileIface, bool)
	Remove(vfd int32) bool
	CloseAll()
	Len() int
}

// ProcessServiceIface is the registry mapping kernel pids to virtual
// processes and owning the parent/child tree.
type ProcessServiceIface interface {
	RegisterRoot(pid uint32) (ProcessIface, error)
	RegisterChild(parent ProcessIface, pid uint32, cloneFlags uint64) (ProcessIface, error)
	Get(pid uint32) ProcessIface
	Kill(pid uint32)
	SyncNew() error

	// CanSee reports whether observer has target in its namespace view
	// (own or descendant membership).
	CanSee(observer, target ProcessIface) bool
}
