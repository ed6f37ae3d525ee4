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

	"github.com/spf13/afero"

	"github.com/bvisor/bvisor/domain"
)

// passthroughNode delegates reads and writes straight to the host path.
// The router only hands out this backend for a small allowlist (/dev/null
// and friends).
type passthroughNode struct {
	path string
	file afero.File
}

func openPassthroughNode(path string, flags int, mode uint32) (domain.FileIface, error) {
	file, err := AppFs.OpenFile(path, flags, os.FileMode(mode))
	if err != nil {
		return nil, err
	}

	return &passthroughNode{path: path, file: file}, nil
}

func (n *passthroughNode) Read(p []byte) (int, error) {
	return n.file.Read(p)
}

func (n *passthroughNode) Write(p []byte) (int, error) {
	return n.file.Write(p)
}

func (n *passthroughNode) Close() error {
	return n.file.Close()
}

func (n *passthroughNode) Backend() domain.Backend {
	return domain.BackendPassthrough
}

func (n *passthroughNode) Path() string {
	return n.path
}
