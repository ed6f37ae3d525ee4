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
	"fmt"
	"syscall"

	libseccomp "github.com/seccomp/libseccomp-golang"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// libseccomp req/resp aliases.
type sysRequest = libseccomp.ScmpNotifReq
type sysResponse = libseccomp.ScmpNotifResp

// Routing verdicts for an intercepted syscall.
type sysCallDisposition int

const (
	routeUndecided sysCallDisposition = iota
	routeHandle                       // dedicated handler emulates the syscall
	routeContinue                     // kernel re-runs the syscall natively
	routeBlock                        // denied with EPERM
	routeToImplement                  // recognized, not emulated yet: ENOSYS
)

type sysCallRoute struct {
	disposition sysCallDisposition
	handler     func(t *syscallTracer, req *sysRequest) (*sysResponse, error)
}

// Tracer lifecycle. One notification is handled to completion before the
// next receive; the states only ever move forward.
type tracerState int

const (
	tracerRunning tracerState = iota
	tracerDraining
	tracerTerminated
)

type seccompArchSyscallPair struct {
	archId    libseccomp.ScmpArch
	syscallId libseccomp.ScmpSyscall
}

// syscallTracer drives the sandbox's notifier fd: it receives one kernel
// notification per intercepted syscall, routes it, and posts exactly one
// reply bearing the notification's id.
type syscallTracer struct {
	service  *Supervisor                       // backpointer to the owning supervisor
	fd       int32                             // supervisor-local notifier fd
	mem      memParser                         // guest-memory bridge
	syscalls map[seccompArchSyscallPair]string // syscall-name resolution, per seccomp arch
	routes   map[string]sysCallRoute           // per-syscall routing table
	state    tracerState
}

// newSyscallTracer builds a tracer for the given supervisor. The memory
// bridge is elected based on the availability of process_vm_readv().
func newSyscallTracer(sup *Supervisor) (*syscallTracer, error) {
	t := &syscallTracer{
		service:  sup,
		fd:       -1,
		syscalls: make(map[seccompArchSyscallPair]string),
		routes:   defaultRoutes(),
	}

	_, err := unix.ProcessVMReadv(1, nil, nil, 0)
	if err == syscall.ENOSYS {
		t.mem = &memParserProcfs{}
		logrus.Info("Procfs memParser elected")
	} else {
		t.mem = &memParserIOvec{}
		logrus.Info("IOvec memParser elected")
	}

	nativeArchId, err := libseccomp.GetNativeArch()
	if err != nil {
		return nil, fmt.Errorf("native-arch resolution error: %v", err)
	}

	for archId, names := range compatibleArchSyscalls(nativeArchId, t.routes) {
		for _, name := range names {
			syscallId, err := libseccomp.GetSyscallFromNameByArch(name, archId)
			if err != nil {
				// A syscall can be absent from a compat arch; skip it there.
				logrus.Debugf("Syscall %q not resolvable on arch %v", name, archId)
				continue
			}
			t.syscalls[seccompArchSyscallPair{archId, syscallId}] = name
		}
	}

	return t, nil
}

// compatibleArchSyscalls lists, per seccomp arch the guest can issue
// syscalls through, the names the tracer must resolve.
func compatibleArchSyscalls(
	nativeArchId libseccomp.ScmpArch,
	routes map[string]sysCallRoute) map[libseccomp.ScmpArch][]string {

	names := make([]string, 0, len(routes))
	for name := range routes {
		names = append(names, name)
	}

	switch nativeArchId {
	case libseccomp.ArchAMD64:
		return map[libseccomp.ScmpArch][]string{
			libseccomp.ArchAMD64: names,
			libseccomp.ArchX86:   names,
		}
	default:
		return map[libseccomp.ScmpArch][]string{
			nativeArchId: names,
		}
	}
}

// defaultRoutes is the supervisor's per-syscall routing table.
func defaultRoutes() map[string]sysCallRoute {
	return map[string]sysCallRoute{
		// Emulated syscalls.
		"read":       {routeHandle, (*syscallTracer).processRead},
		"write":      {routeHandle, (*syscallTracer).processWrite},
		"readv":      {routeHandle, (*syscallTracer).processReadv},
		"writev":     {routeHandle, (*syscallTracer).processWritev},
		"openat":     {routeHandle, (*syscallTracer).processOpenat},
		"close":      {routeHandle, (*syscallTracer).processClose},
		"getpid":     {routeHandle, (*syscallTracer).processGetpid},
		"getppid":    {routeHandle, (*syscallTracer).processGetppid},
		"kill":       {routeHandle, (*syscallTracer).processKill},
		"exit_group": {routeHandle, (*syscallTracer).processExitGroup},

		// The kernel performs the clone; the child is discovered lazily on
		// its first intercepted syscall.
		"clone":  {disposition: routeContinue},
		"clone3": {disposition: routeContinue},
		"fork":   {disposition: routeContinue},
		"vfork":  {disposition: routeContinue},

		// Denied outright: namespace/mount surgery from inside the sandbox.
		"mount":      {disposition: routeBlock},
		"umount2":    {disposition: routeBlock},
		"pivot_root": {disposition: routeBlock},
		"chroot":     {disposition: routeBlock},
		"setns":      {disposition: routeBlock},
		"unshare":    {disposition: routeBlock},
		"reboot":     {disposition: routeBlock},
		"swapon":     {disposition: routeBlock},
		"swapoff":    {disposition: routeBlock},
		"ptrace":     {disposition: routeBlock},

		// Recognized but not emulated yet.
		"open":    {disposition: routeToImplement},
		"creat":   {disposition: routeToImplement},
		"openat2": {disposition: routeToImplement},
		"dup":     {disposition: routeToImplement},
		"dup2":    {disposition: routeToImplement},
		"dup3":    {disposition: routeToImplement},
	}
}

// notifySet returns the syscall names the kernel filter must route to the
// supervisor: everything the routing table does not pre-decide in kernel.
func notifySet(routes map[string]sysCallRoute) []string {
	var names []string
	for name, route := range routes {
		switch route.disposition {
		case routeHandle, routeToImplement, routeUndecided:
			names = append(names, name)
		}
	}
	return names
}

// denySet returns the syscall names the filter pre-denies at kernel level.
func denySet(routes map[string]sysCallRoute) []string {
	var names []string
	for name, route := range routes {
		if route.disposition == routeBlock {
			names = append(names, name)
		}
	}
	return names
}

// start attaches the tracer to the supervisor-local notifier fd produced
// by the bootstrap.
func (t *syscallTracer) start(fd int32) {
	t.fd = fd
	t.state = tracerRunning
}

// run is the dispatcher main loop: receive one notification, process it to
// completion, reply, repeat. It returns once the guest is gone and the
// tracer has drained.
func (t *syscallTracer) run() error {
	if t.fd < 0 {
		return fmt.Errorf("tracer started without a notifier fd")
	}

	for t.state == tracerRunning {
		fds := []unix.PollFd{
			{Fd: t.fd, Events: unix.POLLIN},
		}

		_, err := unix.Poll(fds, -1)
		if err != nil {
			// As per signal(7), poll() isn't restartable by the kernel.
			if err == syscall.EINTR {
				continue
			}
			t.state = tracerDraining
			return fmt.Errorf("notifier poll error: %v", err)
		}

		if fds[0].Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
			// Guest (and every descendant holding the filter) is gone.
			logrus.Debugf("Notifier fd %d hangup; draining", t.fd)
			t.state = tracerDraining
			break
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		req, err := libseccomp.NotifReceive(libseccomp.ScmpFd(t.fd))
		if err != nil {
			if err == syscall.ENOENT || err == syscall.EINTR {
				// The notifying thread died mid-syscall; nothing to answer.
				continue
			}
			if err == syscall.ESRCH || err == syscall.EBADF {
				t.state = tracerDraining
				break
			}
			t.state = tracerDraining
			return fmt.Errorf("notifier receive error: %v", err)
		}

		resp := t.processSyscall(req)

		if err := libseccomp.NotifRespond(libseccomp.ScmpFd(t.fd), resp); err != nil {
			// ENOENT: the guest thread was killed while we processed its
			// syscall. The reply is moot, the loop is not.
			if err != syscall.ENOENT {
				logrus.Warnf("Notifier respond error on fd %d, req id %d: %v",
					t.fd, resp.ID, err)
			}
		}
	}

	t.drain()

	return nil
}

// drain releases what the guest left behind and parks the tracer in its
// terminal state.
func (t *syscallTracer) drain() {
	t.state = tracerDraining

	if root := t.service.prs.Get(t.service.rootPid); root != nil {
		root.FdTable().CloseAll()
		t.service.prs.Kill(t.service.rootPid)
	}

	if t.fd >= 0 {
		if err := unix.Close(int(t.fd)); err != nil {
			logrus.Debugf("Notifier fd %d close error: %v", t.fd, err)
		}
		t.fd = -1
	}

	t.state = tracerTerminated
}

// processSyscall routes one notification and produces its reply. Handler
// failures are never allowed to swallow a reply: any internal error maps
// to an errno-shaped response.
func (t *syscallTracer) processSyscall(req *sysRequest) *sysResponse {

	// A notification from an unknown pid means the kernel cloned a guest
	// process we have not seen yet; reconcile before routing.
	if t.service.prs.Get(req.Pid) == nil {
		if err := t.service.prs.SyncNew(); err != nil {
			logrus.Warnf("Lazy process discovery error for pid %d: %v", req.Pid, err)
		}
	}

	syscallName, ok := t.syscalls[seccompArchSyscallPair{req.Data.Arch, req.Data.Syscall}]
	if !ok {
		// Outside the routing table: safe passthrough.
		logrus.Debugf("Passthrough for unrouted syscall %d (arch %v) from pid %d",
			req.Data.Syscall, req.Data.Arch, req.Pid)
		return t.createContinueResponse(req.ID)
	}

	route := t.routes[syscallName]

	var resp *sysResponse
	var err error

	switch route.disposition {
	case routeHandle:
		resp, err = route.handler(t, req)

	case routeContinue:
		resp = t.createContinueResponse(req.ID)

	case routeBlock:
		resp = t.createErrorResponse(req.ID, syscall.EPERM)

	case routeToImplement, routeUndecided:
		resp = t.createErrorResponse(req.ID, syscall.ENOSYS)

	default:
		logrus.Errorf("Invalid disposition (%v) for syscall %s", route.disposition, syscallName)
		resp = t.createErrorResponse(req.ID, syscall.EINVAL)
	}

	// 'Infrastructure' errors (broken memory bridge, vanished /proc state)
	// surface as EINVAL to the guest; end-user errnos were already encoded
	// in resp by the handler itself.
	if err != nil {
		logrus.Warnf("Error during %s processing for pid %d, req id %d: %v",
			syscallName, req.Pid, req.ID, err)
		return t.createErrorResponse(req.ID, syscall.EINVAL)
	}

	// TOCTOU check: only reply if the request is still valid.
	if err := libseccomp.NotifIDValid(libseccomp.ScmpFd(t.fd), req.ID); err != nil {
		logrus.Debugf("TOCTOU check failed on fd %d pid %d: req id %d no longer valid (%v)",
			t.fd, req.Pid, req.ID, err)
		return t.createErrorResponse(req.ID, syscall.EINVAL)
	}

	return resp
}

func (t *syscallTracer) createSuccessResponse(id uint64) *sysResponse {
	return &sysResponse{
		ID:    id,
		Error: 0,
		Val:   0,
		Flags: 0,
	}
}

func (t *syscallTracer) createSuccessResponseWithRetValue(id, val uint64) *sysResponse {
	return &sysResponse{
		ID:    id,
		Error: 0,
		Val:   val,
		Flags: 0,
	}
}

func (t *syscallTracer) createContinueResponse(id uint64) *sysResponse {
	return &sysResponse{
		ID:    id,
		Error: 0,
		Val:   0,
		Flags: libseccomp.NotifRespFlagContinue,
	}
}

func (t *syscallTracer) createErrorResponse(id uint64, err error) *sysResponse {

	// Override the passed error if this one doesn't match the supported type.
	rcvdError, ok := err.(syscall.Errno)
	if !ok {
		rcvdError = syscall.EINVAL
	}

	return &sysResponse{
		ID:    id,
		Error: int32(rcvdError),
		Val:   0,
		Flags: 0,
	}
}
