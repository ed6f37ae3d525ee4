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
	"os"
	"syscall"
)

// memParserProcfs copies guest memory through /proc/<pid>/mem. Slower than
// the scatter-gather bridge but available on kernels lacking
// CONFIG_CROSS_MEMORY_ATTACH. The guest thread is suspended on the
// notification for the whole exchange, so its mappings are stable.
type memParserProcfs struct{}

func (mp *memParserProcfs) ReadBytes(pid uint32, addr uint64, size int) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}
	if addr == 0 {
		return nil, ErrMemBadAddress
	}

	f, err := mp.open(pid, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, int64(addr))
	if err != nil && n == 0 {
		return nil, mapMemErr(pid, addr, unwrapErrno(err))
	}
	if n < size {
		return nil, fmt.Errorf("%w: read %d of %d bytes from pid %d",
			ErrMemShortCopy, n, size, pid)
	}

	return buf, nil
}

func (mp *memParserProcfs) WriteBytes(pid uint32, addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if addr == 0 {
		return ErrMemBadAddress
	}

	f, err := mp.open(pid, os.O_WRONLY)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := f.WriteAt(data, int64(addr))
	if err != nil {
		return mapMemErr(pid, addr, unwrapErrno(err))
	}
	if n != len(data) {
		return fmt.Errorf("%w: wrote %d of %d bytes to pid %d",
			ErrMemShortCopy, n, len(data), pid)
	}

	return nil
}

func (mp *memParserProcfs) open(pid uint32, flags int) (*os.File, error) {
	name := fmt.Sprintf("/proc/%d/mem", pid)
	f, err := os.OpenFile(name, flags, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: pid %d", ErrMemProcessGone, pid)
		}
		return nil, err
	}
	return f, nil
}

func unwrapErrno(err error) error {
	if pe, ok := err.(*os.PathError); ok {
		return pe.Err
	}
	if errno, ok := err.(syscall.Errno); ok {
		return errno
	}
	return err
}
