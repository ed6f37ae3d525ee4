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
	"errors"
	"os"
	"syscall"
)

// Guest-visible stdio descriptors pass through to the kernel.
const (
	stdinFd  = 0
	stdoutFd = 1
	stderrFd = 2
)

// mapFsErr coerces a backend or filesystem error into the errno the guest
// should observe.
func mapFsErr(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	switch {
	case os.IsNotExist(err):
		return syscall.ENOENT
	case os.IsPermission(err):
		return syscall.EACCES
	case os.IsExist(err):
		return syscall.EEXIST
	}

	return syscall.EIO
}

// mapMemFault coerces a memory-bridge error into a guest errno.
func mapMemFault(err error) syscall.Errno {
	switch {
	case errors.Is(err, ErrMemBadAddress):
		return syscall.EFAULT
	case errors.Is(err, ErrMemProcessGone):
		return syscall.ESRCH
	}
	return syscall.EFAULT
}
