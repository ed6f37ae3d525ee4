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
	"golang.org/x/sys/unix"
)

// filterBuilder assembles the guest's syscall filter. Every terminal rule
// of the generated program resolves to user-notification, kernel-side
// allow, or kernel-side deny; syscalls outside all three lists take the
// default action.
type filterBuilder struct {
	// Notify routes the syscall to the supervisor for emulation.
	Notify []string

	// Allow lets the kernel run the syscall natively, skipping user space.
	Allow []string

	// Deny fails the syscall with EPERM at the kernel level.
	Deny []string

	// NotifyAll ignores the Notify and Deny lists and routes every syscall
	// not on the Allow list to the supervisor. First-revision profile;
	// expensive but exhaustive.
	NotifyAll bool
}

var actDeny = libseccomp.ActErrno.SetReturnCode(int16(syscall.EPERM))

// build translates the builder into a loaded-but-not-yet-installed
// libseccomp filter.
func (b *filterBuilder) build() (*libseccomp.ScmpFilter, error) {
	defaultAction := libseccomp.ActAllow
	if b.NotifyAll {
		defaultAction = libseccomp.ActNotify
	}

	filter, err := libseccomp.NewFilter(defaultAction)
	if err != nil {
		return nil, fmt.Errorf("filter creation error: %v", err)
	}

	if !b.NotifyAll {
		if err := addFilterRules(filter, b.Notify, libseccomp.ActNotify); err != nil {
			filter.Release()
			return nil, err
		}
		if err := addFilterRules(filter, b.Deny, actDeny); err != nil {
			filter.Release()
			return nil, err
		}
	}
	if err := addFilterRules(filter, b.Allow, libseccomp.ActAllow); err != nil {
		filter.Release()
		return nil, err
	}

	// The no-new-privs bit is raised explicitly before installation; keep
	// libseccomp from toggling it a second time during load.
	if err := filter.SetNoNewPrivsBit(false); err != nil {
		filter.Release()
		return nil, fmt.Errorf("filter attribute error: %v", err)
	}

	return filter, nil
}

// install runs in the guest: raises no-new-privs, loads the filter and
// returns the kernel-allocated notifier fd.
func (b *filterBuilder) install() (int32, error) {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return -1, fmt.Errorf("no-new-privs error: %v", err)
	}

	filter, err := b.build()
	if err != nil {
		return -1, err
	}
	defer filter.Release()

	if err := filter.Load(); err != nil {
		return -1, fmt.Errorf("filter load error: %v", err)
	}

	fd, err := filter.GetNotifFd()
	if err != nil {
		return -1, fmt.Errorf("notifier fd error: %v", err)
	}

	return int32(fd), nil
}

func addFilterRules(
	filter *libseccomp.ScmpFilter,
	names []string,
	action libseccomp.ScmpAction) error {

	for _, name := range names {
		syscallID, err := libseccomp.GetSyscallFromName(name)
		if err != nil {
			return fmt.Errorf("unknown syscall %q: %v", name, err)
		}
		if err := filter.AddRule(syscallID, action); err != nil {
			return fmt.Errorf("rule addition error for %q: %v", name, err)
		}
	}

	return nil
}
