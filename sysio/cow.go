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
	"io"
	"os"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/bvisor/bvisor/domain"
)

// cowNode reads through to the host until the path is modified. The first
// write-mode open stages a private copy under the overlay's cow subtree;
// from then on, every open of the path lands on the staged copy. A
// read-only open that never staged anything cannot write.
type cowNode struct {
	path         string
	file         afero.File
	materialized bool
}

func openCowNode(
	ovl domain.OverlayIface,
	path string,
	flags int,
	mode uint32) (domain.FileIface, error) {

	staged := ovl.CowPath(path)

	stagedExists, err := afero.Exists(AppFs, staged)
	if err != nil {
		return nil, err
	}

	// Read-only open of an unmodified path: plain host passthrough.
	if !stagedExists && !writeMode(flags) {
		file, err := AppFs.OpenFile(path, flags, os.FileMode(mode))
		if err != nil {
			return nil, err
		}
		return &cowNode{path: path, file: file}, nil
	}

	if !stagedExists {
		if err := stageCopy(ovl, path, staged, flags); err != nil {
			return nil, err
		}
	}

	file, err := AppFs.OpenFile(staged, flags, os.FileMode(mode))
	if err != nil {
		return nil, err
	}

	return &cowNode{path: path, file: file, materialized: true}, nil
}

// stageCopy materializes the staged copy of a host path, parents on
// demand. With O_TRUNC in play the host content is dead weight and the
// copy starts empty.
func stageCopy(ovl domain.OverlayIface, hostPath, staged string, flags int) error {
	if err := ovl.EnsureDirs(staged); err != nil {
		return err
	}

	dst, err := AppFs.OpenFile(staged, syscall.O_WRONLY|syscall.O_CREAT|syscall.O_EXCL, 0644)
	if err != nil {
		return err
	}
	defer dst.Close()

	if flags&syscall.O_TRUNC != 0 {
		return nil
	}

	src, err := AppFs.Open(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Nothing to seed the copy from; the guest is creating the file.
			return nil
		}
		return err
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	logrus.Debugf("Staged cow copy of %s at %s", hostPath, staged)

	return nil
}

func (n *cowNode) Read(p []byte) (int, error) {
	return n.file.Read(p)
}

func (n *cowNode) Write(p []byte) (int, error) {
	if !n.materialized {
		return 0, syscall.EROFS
	}
	return n.file.Write(p)
}

func (n *cowNode) Close() error {
	return n.file.Close()
}

func (n *cowNode) Backend() domain.Backend {
	return domain.BackendCow
}

func (n *cowNode) Path() string {
	return n.path
}
