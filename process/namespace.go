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
	"github.com/sirupsen/logrus"

	"github.com/bvisor/bvisor/domain"
)

// nsRootPid is reserved for the root process of every pid-namespace.
const nsRootPid = 1

// namespace is a refcounted visibility set of virtual processes. A process
// registered here is also registered in every ancestor namespace, so the
// member map of any namespace already holds the union of its own processes
// and those of all descendant namespaces.
type namespace struct {
	parent  *namespace
	members map[domain.ProcessIface]uint32 // process -> ns-relative pid
	lastPid uint32                         // monotonic; reclaimed pids are not re-issued
	refs    int
}

// NewNamespace creates a namespace chained to the given parent (nil for the
// sandbox root namespace). The new namespace holds a reference on its
// parent, so namespace graphs are strictly trees.
func NewNamespace(parent domain.NamespaceIface) domain.NamespaceIface {
	ns := &namespace{
		members: make(map[domain.ProcessIface]uint32),
		lastPid: nsRootPid,
		refs:    1,
	}

	if parent != nil {
		ns.parent = parent.(*namespace)
		ns.parent.Ref()
	}

	return ns
}

func (ns *namespace) Ref() {
	ns.refs++
}

func (ns *namespace) Unref() {
	ns.refs--
	if ns.refs > 0 {
		return
	}
	if ns.refs < 0 {
		logrus.Fatalf("Namespace refcount underflow (%d)", ns.refs)
	}

	ns.members = nil
	if ns.parent != nil {
		ns.parent.Unref()
		ns.parent = nil
	}
}

func (ns *namespace) Parent() domain.NamespaceIface {
	if ns.parent == nil {
		return nil
	}
	return ns.parent
}

// Register assigns p a namespace-relative pid in this namespace and,
// independently, in every ancestor. The root process of a namespace is
// always pid 1 and does not consume the pid counter; in ancestors it is a
// regular child registration.
func (ns *namespace) Register(p domain.ProcessIface, root bool) {
	if root {
		ns.members[p] = nsRootPid
	} else {
		ns.lastPid++
		ns.members[p] = ns.lastPid
	}

	for anc := ns.parent; anc != nil; anc = anc.parent {
		anc.lastPid++
		anc.members[p] = anc.lastPid
	}
}

// Unregister removes p, by identity, from this namespace and all ancestors.
func (ns *namespace) Unregister(p domain.ProcessIface) {
	for cur := ns; cur != nil; cur = cur.parent {
		delete(cur.members, p)
	}
}

func (ns *namespace) Contains(p domain.ProcessIface) bool {
	_, ok := ns.members[p]
	return ok
}

func (ns *namespace) NsPid(p domain.ProcessIface) (uint32, bool) {
	nsPid, ok := ns.members[p]
	return nsPid, ok
}

// Resolve maps a namespace-relative pid back to the member process it
// names in this namespace's view.
func (ns *namespace) Resolve(nsPid uint32) (domain.ProcessIface, bool) {
	for p, id := range ns.members {
		if id == nsPid {
			return p, true
		}
	}
	return nil, false
}
