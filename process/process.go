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

// Package process maintains the supervisor's virtual view of the guest:
// the kernel-pid to virtual-process map, the parent/child tree, pid
// namespaces and per-process fd-tables. All mutation happens on the
// supervisor goroutine, so refcounts are plain counters.
package process

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bvisor/bvisor/domain"
)

var (
	ErrAlreadyRegistered = errors.New("pid already registered")
	ErrRootRegistered    = errors.New("root process already registered")
	ErrNotRegistered     = errors.New("pid not registered")
)

// process is one virtual guest process.
type process struct {
	pid      uint32
	parent   *process
	children []*process
	ns       domain.NamespaceIface
	fdt      domain.FDTableIface
}

func (p *process) Pid() uint32 {
	return p.pid
}

func (p *process) Parent() domain.ProcessIface {
	if p.parent == nil {
		return nil
	}
	return p.parent
}

func (p *process) Namespace() domain.NamespaceIface {
	return p.ns
}

func (p *process) FdTable() domain.FDTableIface {
	return p.fdt
}

// processService is the registry of virtual processes for one sandbox.
type processService struct {
	procs map[uint32]*process
	root  *process
}

func NewProcessService() domain.ProcessServiceIface {
	return &processService{
		procs: make(map[uint32]*process),
	}
}

// RegisterRoot creates the sandbox's root virtual process, its root
// pid-namespace and its initial fd-table. Called exactly once per sandbox.
func (prs *processService) RegisterRoot(pid uint32) (domain.ProcessIface, error) {
	if prs.root != nil {
		return nil, ErrRootRegistered
	}
	if _, ok := prs.procs[pid]; ok {
		return nil, ErrAlreadyRegistered
	}

	p := &process{
		pid: pid,
		ns:  NewNamespace(nil),
		fdt: NewFdTable(),
	}
	p.ns.Register(p, true)

	prs.procs[pid] = p
	prs.root = p

	logrus.Debugf("Registered root process, kernel pid %d", pid)

	return p, nil
}

// RegisterChild creates a virtual process under the given parent. The
// clone flags decide the child's views: CLONE_NEWPID chains a fresh
// descendant namespace, CLONE_FILES shares the parent's fd-table (other
// flag combinations deep-copy it).
func (prs *processService) RegisterChild(
	parent domain.ProcessIface,
	pid uint32,
	cloneFlags uint64) (domain.ProcessIface, error) {

	if parent == nil {
		return nil, fmt.Errorf("nil parent for child pid %d", pid)
	}
	if _, ok := prs.procs[pid]; ok {
		return nil, ErrAlreadyRegistered
	}

	pp, ok := parent.(*process)
	if !ok || prs.procs[pp.pid] != pp {
		return nil, fmt.Errorf("%w: parent pid %d", ErrNotRegistered, parent.Pid())
	}

	p := &process{
		pid:    pid,
		parent: pp,
	}

	if cloneFlags&domain.CloneNewPid != 0 {
		p.ns = NewNamespace(pp.ns)
		p.ns.Register(p, true)
	} else {
		p.ns = pp.ns
		p.ns.Ref()
		p.ns.Register(p, false)
	}

	if cloneFlags&domain.CloneFiles != 0 {
		p.fdt = pp.fdt
		p.fdt.Ref()
	} else {
		p.fdt = pp.fdt.Clone()
	}

	pp.children = append(pp.children, p)
	prs.procs[pid] = p

	logrus.Debugf("Registered child process, kernel pid %d (parent %d, flags %#x)",
		pid, pp.pid, cloneFlags)

	return p, nil
}

func (prs *processService) Get(pid uint32) domain.ProcessIface {
	p, ok := prs.procs[pid]
	if !ok {
		return nil
	}
	return p
}

// CanSee reports whether the observer has the target in its namespace view.
func (prs *processService) CanSee(observer, target domain.ProcessIface) bool {
	if observer == nil || target == nil {
		return false
	}
	return observer.Namespace().Contains(target)
}

// Kill removes the target process and its entire subtree. Each victim is
// unregistered from every namespace it belongs to before its fd-table and
// namespace references are released; fd-table entries are closed when the
// last table reference goes away with the subtree.
func (prs *processService) Kill(pid uint32) {
	p, ok := prs.procs[pid]
	if !ok {
		return
	}

	prs.killSubtree(p)

	// Detach from the surviving parent.
	if p.parent != nil {
		p.parent.dropChild(p)
	}
	if p == prs.root {
		prs.root = nil
	}
}

// killSubtree tears down p and its descendants, leaves first.
func (prs *processService) killSubtree(p *process) {
	for _, child := range p.children {
		prs.killSubtree(child)
	}
	p.children = nil

	p.ns.Unregister(p)

	if p.fdt.Refs() == 1 {
		p.fdt.CloseAll()
	}
	p.fdt.Unref()
	p.ns.Unref()

	delete(prs.procs, p.pid)

	logrus.Debugf("Removed process, kernel pid %d", p.pid)
}

func (p *process) dropChild(child *process) {
	for i, c := range p.children {
		if c == child {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return
		}
	}
}

// SyncNew reconciles the registry against the kernel's procfs view,
// registering any alive descendant of the sandbox root the supervisor has
// not observed yet. New processes are attached under the kernel-reported
// parent; when the parent itself is unknown, its ancestor chain is
// registered first, so discovery order cannot orphan a process. Invoked
// before /proc-path virtualization and before dispatching a syscall from
// an unknown pid.
func (prs *processService) SyncNew() error {
	if prs.root == nil {
		return errors.New("sync-new without a registered root process")
	}

	pids, err := listProcPids()
	if err != nil {
		return err
	}

	// Kernel parent of every live pid; needed to decide sandbox membership.
	ppids := make(map[uint32]uint32, len(pids))
	for _, pid := range pids {
		st, err := readProcStatus(pid)
		if err != nil {
			// Raced with the process' exit.
			continue
		}
		ppids[pid] = st.ppid
	}

	for _, pid := range pids {
		if _, ok := prs.procs[pid]; ok {
			continue
		}
		if !prs.descendsFromRoot(pid, ppids) {
			continue
		}
		if err := prs.registerChain(pid, ppids); err != nil {
			logrus.Warnf("Lazy discovery of pid %d failed: %v", pid, err)
		}
	}

	return nil
}

// descendsFromRoot walks the kernel ppid chain towards the sandbox root.
func (prs *processService) descendsFromRoot(pid uint32, ppids map[uint32]uint32) bool {
	for cur := pid; cur != 0; {
		if cur == prs.root.pid {
			return true
		}
		next, ok := ppids[cur]
		if !ok || next == cur {
			return false
		}
		cur = next
	}
	return false
}

// registerChain registers pid, first registering any unknown ancestors
// between it and the nearest known process. Lazily discovered processes get
// default clone semantics: the parent's namespace and a deep-copied
// fd-table (the real clone flags are unknowable after the fact).
func (prs *processService) registerChain(pid uint32, ppids map[uint32]uint32) error {
	var chain []uint32

	cur := pid
	for {
		if _, ok := prs.procs[cur]; ok {
			break
		}
		chain = append(chain, cur)
		next, ok := ppids[cur]
		if !ok {
			return fmt.Errorf("parent chain for pid %d vanished", pid)
		}
		cur = next
	}

	// chain holds pid..nearest-unknown-ancestor; register top-down.
	for i := len(chain) - 1; i >= 0; i-- {
		parent := prs.procs[ppids[chain[i]]]
		if _, err := prs.RegisterChild(parent, chain[i], 0); err != nil {
			return err
		}
		logrus.Infof("Lazily discovered guest process, kernel pid %d (parent %d)",
			chain[i], parent.pid)
	}

	return nil
}
