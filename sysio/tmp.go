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

package sysio

import (
	"os"
	"strings"
	"syscall"

	"github.com/spf13/afero"

	"github.com/bvisor/bvisor/domain"
)

const guestTmpPrefix = "/tmp"

// tmpNode maps guest /tmp/<suffix> onto the sandbox's private tmp subtree.
// There is no copy-on-write here: the guest's /tmp starts empty and reads
// and writes always target the private tree.
type tmpNode struct {
	path string // guest-visible path
	file afero.File
}

func openTmpNode(
	ovl domain.OverlayIface,
	path string,
	flags int,
	mode uint32) (domain.FileIface, error) {

	if path != guestTmpPrefix && !strings.HasPrefix(path, guestTmpPrefix+"/") {
		return nil, syscall.EINVAL
	}

	hostPath := ovl.TmpPath(strings.TrimPrefix(path, guestTmpPrefix))
	if err := ovl.EnsureDirs(hostPath); err != nil {
		return nil, err
	}

	file, err := AppFs.OpenFile(hostPath, flags, os.FileMode(mode))
	if err != nil {
		return nil, err
	}

	return &tmpNode{path: path, file: file}, nil
}

func (n *tmpNode) Read(p []byte) (int, error) {
	return n.file.Read(p)
}

func (n *tmpNode) Write(p []byte) (int, error) {
	return n.file.Write(p)
}

func (n *tmpNode) Close() error {
	return n.file.Close()
}

func (n *tmpNode) Backend() domain.Backend {
	return domain.BackendTmp
}

func (n *tmpNode) Path() string {
	return n.path
}
