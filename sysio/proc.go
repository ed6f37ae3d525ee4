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
	"syscall"

	"github.com/bvisor/bvisor/domain"
)

// procNode serves synthesized /proc content. The buffer is rendered once
// at open time and reads advance a per-open cursor; the entry is read-only.
type procNode struct {
	path    string
	content []byte
	cursor  int
}

func openProcNode(
	hds domain.HandlerServiceIface,
	path string,
	pid uint32) (domain.FileIface, error) {

	content, err := hds.Render(path, pid)
	if err != nil {
		return nil, err
	}

	return &procNode{path: path, content: content}, nil
}

func (n *procNode) Read(p []byte) (int, error) {
	if n.cursor >= len(n.content) {
		return 0, io.EOF
	}

	count := copy(p, n.content[n.cursor:])
	n.cursor += count

	return count, nil
}

func (n *procNode) Write(p []byte) (int, error) {
	return 0, syscall.EROFS
}

func (n *procNode) Close() error {
	return nil
}

func (n *procNode) Backend() domain.Backend {
	return domain.BackendProc
}

func (n *procNode) Path() string {
	return n.path
}
