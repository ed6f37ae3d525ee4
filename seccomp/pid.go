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
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/bvisor/bvisor/domain"
)

// processGetpid reports the caller's kernel pid. Kernel-pid identity keeps
// getpid consistent with getppid and with lazily-discovered processes; the
// namespace-relative pid is what /proc virtualization reports.
func (t *syscallTracer) processGetpid(req *sysRequest) (*sysResponse, error) {
	caller := t.service.prs.Get(req.Pid)
	if caller == nil {
		// getpid cannot fail in Linux; an unresolvable caller after the
		// lazy-sync step means the registry invariant collapsed.
		logrus.Fatalf("Invariant violation: getpid caller pid %d not in registry", req.Pid)
	}

	return t.createSuccessResponseWithRetValue(req.ID, uint64(caller.Pid())), nil
}

// processGetppid reports the parent's kernel pid when the parent is
// visible in the caller's pid-namespace, and 0 otherwise (the parent of a
// namespace root lives outside the guest's view).
func (t *syscallTracer) processGetppid(req *sysRequest) (*sysResponse, error) {
	caller := t.service.prs.Get(req.Pid)
	if caller == nil {
		logrus.Fatalf("Invariant violation: getppid caller pid %d not in registry", req.Pid)
	}

	parent := caller.Parent()
	if parent == nil || !t.service.prs.CanSee(caller, parent) {
		return t.createSuccessResponseWithRetValue(req.ID, 0), nil
	}

	return t.createSuccessResponseWithRetValue(req.ID, uint64(parent.Pid())), nil
}

// processKill virtualizes kill(2) for targets inside the sandbox: for a
// fatal signal the registry tears down the target's subtree, and the signal
// is delivered to the kernel process. Targets outside the guest's view fail
// with ESRCH.
func (t *syscallTracer) processKill(req *sysRequest) (*sysResponse, error) {
	targetPid := int32(req.Data.Args[0])
	sig := syscall.Signal(req.Data.Args[1])

	caller := t.service.prs.Get(req.Pid)
	if caller == nil {
		return t.createErrorResponse(req.ID, syscall.ESRCH), nil
	}

	// Process groups and broadcast are not virtualized.
	if targetPid <= 0 {
		return t.createErrorResponse(req.ID, syscall.EPERM), nil
	}

	target := t.resolveVisiblePid(caller, uint32(targetPid))
	if target == nil {
		return t.createErrorResponse(req.ID, syscall.ESRCH), nil
	}

	// Existence probe.
	if sig == 0 {
		return t.createSuccessResponse(req.ID), nil
	}

	kernelPid := target.Pid()

	if isFatalSignal(sig) {
		t.service.prs.Kill(kernelPid)
	}

	if err := unix.Kill(int(kernelPid), sig); err != nil {
		return t.createErrorResponse(req.ID, mapFsErr(err)), nil
	}

	logrus.Debugf("Delivered signal %v from pid %d to kernel pid %d",
		sig, req.Pid, kernelPid)

	return t.createSuccessResponse(req.ID), nil
}

// processExitGroup tears down the caller's virtual subtree, closing its
// fd-table entries, then lets the kernel run the real exit.
func (t *syscallTracer) processExitGroup(req *sysRequest) (*sysResponse, error) {
	caller := t.service.prs.Get(req.Pid)
	if caller != nil {
		if caller.FdTable().Refs() == 1 {
			caller.FdTable().CloseAll()
		}
		t.service.prs.Kill(req.Pid)
	}

	logrus.Debugf("Guest pid %d exited (status %d)", req.Pid, int32(req.Data.Args[0]))

	return t.createContinueResponse(req.ID), nil
}

// resolveVisiblePid names the process a guest-supplied pid refers to: a
// namespace-relative pid in the caller's view first, the kernel pid of a
// visible process second.
func (t *syscallTracer) resolveVisiblePid(
	caller domain.ProcessIface,
	pid uint32) domain.ProcessIface {

	if target, ok := caller.Namespace().Resolve(pid); ok {
		return target
	}

	if target := t.service.prs.Get(pid); target != nil {
		if t.service.prs.CanSee(caller, target) {
			return target
		}
	}

	return nil
}

func isFatalSignal(sig syscall.Signal) bool {
	switch sig {
	case syscall.SIGKILL, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP:
		return true
	}
	return false
}
