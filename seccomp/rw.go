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
	"encoding/binary"
	"errors"
	"io"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/bvisor/bvisor/domain"
)

// Iovec geometry on 64-bit Linux: {base uint64, len uint64}.
const iovecSize = 16

// Writev/readv process at most this many iovec entries per call; any
// excess is silently ignored, mirroring a short transfer.
const maxIovecCount = 16

// guestIovec is one scatter-gather element read from guest memory.
type guestIovec struct {
	base uint64
	size uint64
}

// processWrite virtualizes write(2). Stdout and stderr pass through to the
// kernel; virtual fds delegate to their backend.
func (t *syscallTracer) processWrite(req *sysRequest) (*sysResponse, error) {
	vfd := int32(req.Data.Args[0])
	bufAddr := req.Data.Args[1]
	count := int(req.Data.Args[2])

	if vfd == stdoutFd || vfd == stderrFd {
		logrus.Debugf("Passthrough write of %d bytes to fd %d from pid %d",
			count, vfd, req.Pid)
		return t.createContinueResponse(req.ID), nil
	}

	file, errno := t.lookupFile(req.Pid, vfd)
	if errno != 0 {
		return t.createErrorResponse(req.ID, errno), nil
	}

	if count > memParserChunkMax {
		count = memParserChunkMax
	}
	if count == 0 {
		return t.createSuccessResponse(req.ID), nil
	}

	data, err := t.mem.ReadBytes(req.Pid, bufAddr, count)
	if err != nil {
		return t.createErrorResponse(req.ID, mapMemFault(err)), nil
	}

	n, err := file.Write(data)
	if err != nil {
		return t.createErrorResponse(req.ID, mapFsErr(err)), nil
	}

	return t.createSuccessResponseWithRetValue(req.ID, uint64(n)), nil
}

// processRead virtualizes read(2): bytes produced by the backend are
// written back into the guest's buffer.
func (t *syscallTracer) processRead(req *sysRequest) (*sysResponse, error) {
	vfd := int32(req.Data.Args[0])
	bufAddr := req.Data.Args[1]
	count := int(req.Data.Args[2])

	if vfd == stdinFd {
		return t.createContinueResponse(req.ID), nil
	}

	file, errno := t.lookupFile(req.Pid, vfd)
	if errno != 0 {
		return t.createErrorResponse(req.ID, errno), nil
	}

	if count > memParserChunkMax {
		count = memParserChunkMax
	}
	if count == 0 {
		return t.createSuccessResponse(req.ID), nil
	}

	buf := make([]byte, count)
	n, err := file.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return t.createErrorResponse(req.ID, mapFsErr(err)), nil
	}
	if n == 0 {
		return t.createSuccessResponse(req.ID), nil
	}

	if err := t.mem.WriteBytes(req.Pid, bufAddr, buf[:n]); err != nil {
		return t.createErrorResponse(req.ID, mapMemFault(err)), nil
	}

	return t.createSuccessResponseWithRetValue(req.ID, uint64(n)), nil
}

// processWritev virtualizes writev(2) over the first maxIovecCount
// entries, bounded by the per-call transfer cap.
func (t *syscallTracer) processWritev(req *sysRequest) (*sysResponse, error) {
	vfd := int32(req.Data.Args[0])
	iovAddr := req.Data.Args[1]
	iovCount := int(req.Data.Args[2])

	if vfd == stdoutFd || vfd == stderrFd {
		return t.createContinueResponse(req.ID), nil
	}

	file, errno := t.lookupFile(req.Pid, vfd)
	if errno != 0 {
		return t.createErrorResponse(req.ID, errno), nil
	}

	iovecs, err := t.readIovecs(req.Pid, iovAddr, iovCount)
	if err != nil {
		return t.createErrorResponse(req.ID, mapMemFault(err)), nil
	}

	var total int
	budget := memParserChunkMax

	for _, iov := range iovecs {
		if budget == 0 {
			break
		}

		size := int(iov.size)
		if size == 0 {
			continue
		}
		if size > budget {
			size = budget
		}

		data, err := t.mem.ReadBytes(req.Pid, iov.base, size)
		if err != nil {
			return t.createErrorResponse(req.ID, mapMemFault(err)), nil
		}

		n, err := file.Write(data)
		total += n
		if err != nil {
			if total > 0 {
				break
			}
			return t.createErrorResponse(req.ID, mapFsErr(err)), nil
		}

		budget -= n
		if n < size {
			break
		}
	}

	return t.createSuccessResponseWithRetValue(req.ID, uint64(total)), nil
}

// processReadv virtualizes readv(2), scattering backend bytes across the
// guest's iovec entries.
func (t *syscallTracer) processReadv(req *sysRequest) (*sysResponse, error) {
	vfd := int32(req.Data.Args[0])
	iovAddr := req.Data.Args[1]
	iovCount := int(req.Data.Args[2])

	if vfd == stdinFd {
		return t.createContinueResponse(req.ID), nil
	}

	file, errno := t.lookupFile(req.Pid, vfd)
	if errno != 0 {
		return t.createErrorResponse(req.ID, errno), nil
	}

	iovecs, err := t.readIovecs(req.Pid, iovAddr, iovCount)
	if err != nil {
		return t.createErrorResponse(req.ID, mapMemFault(err)), nil
	}

	var total int
	budget := memParserChunkMax

	for _, iov := range iovecs {
		if budget == 0 {
			break
		}

		size := int(iov.size)
		if size == 0 {
			continue
		}
		if size > budget {
			size = budget
		}

		buf := make([]byte, size)
		n, err := file.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			if total > 0 {
				break
			}
			return t.createErrorResponse(req.ID, mapFsErr(err)), nil
		}
		if n == 0 {
			break
		}

		if err := t.mem.WriteBytes(req.Pid, iov.base, buf[:n]); err != nil {
			return t.createErrorResponse(req.ID, mapMemFault(err)), nil
		}

		total += n
		budget -= n
		if n < size {
			break
		}
	}

	return t.createSuccessResponseWithRetValue(req.ID, uint64(total)), nil
}

// lookupFile resolves a virtual fd in the caller's table.
func (t *syscallTracer) lookupFile(pid uint32, vfd int32) (domain.FileIface, syscall.Errno) {
	caller := t.service.prs.Get(pid)
	if caller == nil {
		return nil, syscall.ESRCH
	}

	file, ok := caller.FdTable().Get(vfd)
	if !ok {
		return nil, syscall.EBADF
	}

	return file, 0
}

// readIovecs extracts up to maxIovecCount iovec records from guest memory.
func (t *syscallTracer) readIovecs(pid uint32, addr uint64, count int) ([]guestIovec, error) {
	if count <= 0 {
		return nil, nil
	}
	if count > maxIovecCount {
		count = maxIovecCount
	}

	raw, err := t.mem.ReadBytes(pid, addr, count*iovecSize)
	if err != nil {
		return nil, err
	}

	iovecs := make([]guestIovec, count)
	for i := 0; i < count; i++ {
		rec := raw[i*iovecSize:]
		iovecs[i] = guestIovec{
			base: binary.LittleEndian.Uint64(rec[0:8]),
			size: binary.LittleEndian.Uint64(rec[8:16]),
		}
	}

	return iovecs, nil
}
