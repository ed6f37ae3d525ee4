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

// Package sysio implements the open-file backends behind the sandbox's
// virtual fd-tables: host passthrough, copy-on-write staging, the private
// /tmp tree and synthesized /proc content. Every backend is a small
// io-node variant; the variant is fixed at open time.
package sysio

import (
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/bvisor/bvisor/domain"
)

// AppFs backs all host filesystem access; tests swap in a MemMapFs.
var AppFs = afero.NewOsFs()

// ioFileService creates io-nodes over one sandbox's overlay.
type ioFileService struct {
	ovl domain.OverlayIface
	hds domain.HandlerServiceIface
}

func NewIOService() domain.FileServiceIface {
	return &ioFileService{}
}

func (s *ioFileService) Setup(
	ovl domain.OverlayIface,
	hds domain.HandlerServiceIface) {

	s.ovl = ovl
	s.hds = hds
}

// Open creates the io-node variant the router decided on for the given
// normalized absolute path. Blocked paths never reach a backend.
func (s *ioFileService) Open(
	dec domain.RouteDecision,
	path string,
	flags int,
	mode uint32,
	pid uint32) (domain.FileIface, error) {

	switch dec {

	case domain.RoutePassthrough:
		return openPassthroughNode(path, flags, mode)

	case domain.RouteCow:
		return openCowNode(s.ovl, path, flags, mode)

	case domain.RouteTmp:
		return openTmpNode(s.ovl, path, flags, mode)

	case domain.RouteProc:
		return openProcNode(s.hds, path, pid)

	case domain.RouteBlocked:
		return nil, syscall.EACCES

	default:
		logrus.Errorf("Unsupported backend decision (%v) for path %s", dec, path)
		return nil, syscall.EINVAL
	}
}

// writeMode reports whether the open flags can mutate the file.
func writeMode(flags int) bool {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return true
	}
	return flags&(syscall.O_CREAT|syscall.O_TRUNC|syscall.O_APPEND) != 0
}
