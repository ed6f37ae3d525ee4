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

	"golang.org/x/sys/unix"
)

// memParserIOvec copies guest memory through the scatter-gather
// process_vm_readv(2)/process_vm_writev(2) interface. This is the default
// bridge on kernels built with CONFIG_CROSS_MEMORY_ATTACH.
type memParserIOvec struct{}

func (mp *memParserIOvec) ReadBytes(pid uint32, addr uint64, size int) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}
	if addr == 0 {
		return nil, ErrMemBadAddress
	}

	buf := make([]byte, size)

	localIov := []unix.Iovec{
		{Base: &buf[0], Len: uint64(size)},
	}
	remoteIov := []unix.RemoteIovec{
		{Base: uintptr(addr), Len: size},
	}

	n, err := unix.ProcessVMReadv(int(pid), localIov, remoteIov, 0)
	if err != nil {
		return nil, mapMemErr(pid, addr, err)
	}
	if n < size {
		return nil, fmt.Errorf("%w: read %d of %d bytes from pid %d",
			ErrMemShortCopy, n, size, pid)
	}

	return buf, nil
}

func (mp *memParserIOvec) WriteBytes(pid uint32, addr uint64, data []byte) error {
	size := len(data)
	if size == 0 {
		return nil
	}
	if addr == 0 {
		return ErrMemBadAddress
	}

	localIov := []unix.Iovec{
		{Base: &data[0], Len: uint64(size)},
	}
	remoteIov := []unix.RemoteIovec{
		{Base: uintptr(addr), Len: size},
	}

	n, err := unix.ProcessVMWritev(int(pid), localIov, remoteIov, 0)
	if err != nil {
		return mapMemErr(pid, addr, err)
	}
	if n != size {
		return fmt.Errorf("%w: wrote %d of %d bytes to pid %d",
			ErrMemShortCopy, n, size, pid)
	}

	return nil
}

func mapMemErr(pid uint32, addr uint64, err error) error {
	switch err {
	case syscall.EFAULT:
		return fmt.Errorf("%w: pid %d addr %#x", ErrMemBadAddress, pid, addr)
	case syscall.ESRCH:
		return fmt.Errorf("%w: pid %d", ErrMemProcessGone, pid)
	}
	return fmt.Errorf("guest-memory copy failed for pid %d: %v", pid, err)
}
