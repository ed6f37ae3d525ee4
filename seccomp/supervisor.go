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

// Package seccomp implements the sandbox supervisor: the interception
// bootstrap, the kernel syscall filter, the guest-memory bridge, and the
// dispatcher that virtualizes intercepted syscalls over the sandbox's
// process registry, path router and file backends.
package seccomp

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bvisor/bvisor/domain"
	"github.com/bvisor/bvisor/handler"
	"github.com/bvisor/bvisor/process"
	"github.com/bvisor/bvisor/router"
	"github.com/bvisor/bvisor/state"
	"github.com/bvisor/bvisor/sysio"
)

// Supervisor wires the services of one sandbox and drives its dispatcher.
// All per-sandbox state hangs off this struct; several supervisors can
// coexist in one host process without sharing anything but the host
// kernel.
type Supervisor struct {
	ovl     domain.OverlayIface
	prs     domain.ProcessServiceIface
	rtr     domain.RouterIface
	hds     domain.HandlerServiceIface
	ios     domain.FileServiceIface
	tracer  *syscallTracer
	rootPid uint32
}

// NewSupervisor assembles the supervisor for a fresh sandbox.
func NewSupervisor() (*Supervisor, error) {
	ovl, err := state.NewSandbox()
	if err != nil {
		return nil, err
	}
	return NewSupervisorWithOverlay(ovl)
}

// NewSupervisorWithOverlay assembles a supervisor over a caller-provided
// overlay; the caller keeps teardown responsibility for it.
func NewSupervisorWithOverlay(ovl domain.OverlayIface) (*Supervisor, error) {
	sup := &Supervisor{
		ovl: ovl,
		prs: process.NewProcessService(),
		rtr: router.New(),
		hds: handler.NewHandlerService(handler.DefaultHandlers),
		ios: sysio.NewIOService(),
	}

	sup.hds.Setup(sup.prs)
	sup.ios.Setup(ovl, sup.hds)

	tracer, err := newSyscallTracer(sup)
	if err != nil {
		return nil, err
	}
	sup.tracer = tracer

	return sup, nil
}

// Overlay exposes the sandbox's staging area (for registration in a
// sandbox DB and for teardown).
func (sup *Supervisor) Overlay() domain.OverlayIface {
	return sup.ovl
}

// Run executes the workload inside the sandbox and supervises it until
// the guest and all of its descendants are gone. The overlay is torn down
// on the way out.
func (sup *Supervisor) Run(workload []string) error {
	boot, err := launchGuest(workload)
	if err != nil {
		return fmt.Errorf("sandbox bootstrap error: %w", err)
	}

	if _, err := sup.prs.RegisterRoot(boot.guestPid); err != nil {
		teardownGuest(boot.cmd)
		return fmt.Errorf("sandbox root registration error: %w", err)
	}
	sup.rootPid = boot.guestPid

	sup.tracer.start(boot.notifFd)

	logrus.Infof("Sandbox %s supervising guest pid %d", sup.ovl.UID(), boot.guestPid)

	runErr := sup.tracer.run()

	if err := boot.cmd.Wait(); err != nil {
		logrus.Debugf("Guest pid %d wait: %v", boot.guestPid, err)
	}

	if err := sup.ovl.Teardown(); err != nil {
		logrus.Warnf("Sandbox %s overlay teardown error: %v", sup.ovl.UID(), err)
	}

	return runErr
}
