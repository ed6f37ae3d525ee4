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

// Package handler resolves virtualized /proc paths to the renderer that
// synthesizes their content. Numeric path components are canonicalized to
// a "[pid]" slot, so one handler serves every /proc/<N> instance.
package handler

import (
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/bvisor/bvisor/domain"
	"github.com/bvisor/bvisor/handler/implementations"
)

// pidSlot substitutes the numeric component of /proc/<N> paths in the
// handler table.
const pidSlot = "[pid]"

// DefaultHandlers is the set of /proc entries bvisor virtualizes. Please
// keep me alphabetically ordered.
var DefaultHandlers = []domain.HandlerIface{
	&implementations.ProcPidHandler{
		Name:    "procPid",
		Path:    "/proc/[pid]",
		Enabled: true,
	},
	&implementations.ProcPidStatusHandler{
		Name:    "procPidStatus",
		Path:    "/proc/[pid]/status",
		Enabled: true,
	},
	&implementations.ProcSelfHandler{
		Name:    "procSelf",
		Path:    "/proc/self",
		Enabled: true,
	},
	&implementations.ProcSelfStatusHandler{
		Name:    "procSelfStatus",
		Path:    "/proc/self/status",
		Enabled: true,
	},
}

type handlerService struct {
	handlers map[string]domain.HandlerIface
	prs      domain.ProcessServiceIface
}

func NewHandlerService(hs []domain.HandlerIface) domain.HandlerServiceIface {
	svc := &handlerService{
		handlers: make(map[string]domain.HandlerIface),
	}

	for _, h := range hs {
		if !h.GetEnabled() {
			continue
		}
		h.SetService(svc)
		svc.handlers[h.GetPath()] = h
	}

	return svc
}

func (svc *handlerService) Setup(prs domain.ProcessServiceIface) {
	svc.prs = prs
}

func (svc *handlerService) ProcessService() domain.ProcessServiceIface {
	return svc.prs
}

// LookupHandler canonicalizes the given /proc path and returns its handler
// plus the request skeleton (numeric component extracted). Unknown entries
// yield ENOENT.
func (svc *handlerService) LookupHandler(
	path string) (domain.HandlerIface, *domain.HandlerRequest, error) {

	canonical, target, err := canonicalize(path)
	if err != nil {
		return nil, nil, err
	}

	h, ok := svc.handlers[canonical]
	if !ok {
		return nil, nil, syscall.ENOENT
	}

	return h, &domain.HandlerRequest{Target: target}, nil
}

// Render produces the content of the given /proc path on behalf of the
// calling pid.
func (svc *handlerService) Render(path string, pid uint32) ([]byte, error) {
	h, req, err := svc.LookupHandler(path)
	if err != nil {
		return nil, err
	}
	req.Pid = pid

	data, err := h.Render(req)
	if err != nil {
		return nil, err
	}

	if len(data) > domain.ProcRenderMax {
		logrus.Warnf("Handler %s rendered %d bytes for %s; truncating to %d",
			h.GetName(), len(data), path, domain.ProcRenderMax)
		data = data[:domain.ProcRenderMax]
	}

	return data, nil
}

// canonicalize rewrites /proc/<N> components to the [pid] slot and returns
// the extracted pid, zero when the path names no numeric component.
func canonicalize(path string) (string, uint32, error) {
	comps := strings.Split(path, "/")

	// Expected shapes: ["", "proc", <entry>, ...].
	if len(comps) < 3 || comps[0] != "" || comps[1] != "proc" {
		return "", 0, syscall.ENOENT
	}

	var target uint32
	if n, err := strconv.ParseUint(comps[2], 10, 32); err == nil {
		if n == 0 {
			return "", 0, syscall.ENOENT
		}
		comps[2] = pidSlot
		target = uint32(n)
	}

	return strings.Join(comps, "/"), target, nil
}
