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
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/bvisor/bvisor/domain"
)

// processOpenat virtualizes openat(2): the path is routed to a backend,
// the backend's open result lands in the caller's fd-table, and the guest
// receives the virtual fd. Only absolute paths are supported in this
// revision, which makes the dirfd argument irrelevant.
func (t *syscallTracer) processOpenat(req *sysRequest) (*sysResponse, error) {

	logrus.Debugf("Received openat syscall from pid %d", req.Pid)

	pathAddr := req.Data.Args[1]
	flags := int(req.Data.Args[2])
	mode := uint32(req.Data.Args[3])

	path, err := readString(t.mem, req.Pid, pathAddr)
	if err != nil {
		return t.createErrorResponse(req.ID, mapMemFault(err)), nil
	}

	if !filepath.IsAbs(path) {
		return t.createErrorResponse(req.ID, syscall.EINVAL), nil
	}

	caller := t.service.prs.Get(req.Pid)
	if caller == nil {
		return t.createErrorResponse(req.ID, syscall.ESRCH), nil
	}

	path = t.service.rtr.Normalize(path)
	dec := t.service.rtr.Route(path)

	switch dec {
	case domain.RouteBlocked:
		logrus.Debugf("Blocked openat of %s from pid %d", path, req.Pid)
		return t.createErrorResponse(req.ID, syscall.EACCES), nil

	case domain.RouteProc:
		// Register any guest processes the supervisor has not observed yet,
		// so namespace-relative path lookups see them.
		if err := t.service.prs.SyncNew(); err != nil {
			return nil, err
		}
	}

	file, err := t.service.ios.Open(dec, path, flags, mode, req.Pid)
	if err != nil {
		return t.createErrorResponse(req.ID, mapFsErr(err)), nil
	}

	vfd, err := caller.FdTable().Insert(file)
	if err != nil {
		file.Close()
		return t.createErrorResponse(req.ID, mapFsErr(err)), nil
	}

	logrus.Debugf("Opened %s (%s backend) as vfd %d for pid %d",
		path, file.Backend(), vfd, req.Pid)

	return t.createSuccessResponseWithRetValue(req.ID, uint64(vfd)), nil
}

// processClose releases a virtual fd. Descriptors the table does not know
// belong to the guest's real fd space and pass through to the kernel.
func (t *syscallTracer) processClose(req *sysRequest) (*sysResponse, error) {
	vfd := int32(req.Data.Args[0])

	caller := t.service.prs.Get(req.Pid)
	if caller == nil {
		return t.createContinueResponse(req.ID), nil
	}

	file, ok := caller.FdTable().Get(vfd)
	if !ok {
		return t.createContinueResponse(req.ID), nil
	}

	caller.FdTable().Remove(vfd)
	if err := file.Close(); err != nil {
		return t.createErrorResponse(req.ID, mapFsErr(err)), nil
	}

	return t.createSuccessResponse(req.ID), nil
}
