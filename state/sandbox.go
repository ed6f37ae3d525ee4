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

// Package state holds per-sandbox on-disk state: the overlay staging area
// and the registry keeping concurrent sandboxes in one host process apart.
package state

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/bvisor/bvisor/domain"
)

// AppFs backs all overlay disk operations; tests swap in a MemMapFs.
var AppFs = afero.NewOsFs()

// Overlay layout: <overlayHome>/sb/<16-hex-char uid>/{cow,tmp}.
const (
	overlayHome = "/tmp/.bvisor"
	sandboxDir  = "sb"
	cowSubtree  = "cow"
	tmpSubtree  = "tmp"
)

// sandbox is the per-instance overlay root. Subtrees are created lazily;
// teardown removes the whole tree.
type sandbox struct {
	uid  string
	root string
}

// NewSandbox allocates a sandbox with a fresh random uid under the default
// overlay home.
func NewSandbox() (domain.OverlayIface, error) {
	uid, err := newUID()
	if err != nil {
		return nil, err
	}
	return NewSandboxWithUID(uid)
}

// NewSandboxWithUID allocates a sandbox rooted at the given 16-hex-char uid.
func NewSandboxWithUID(uid string) (domain.OverlayIface, error) {
	if len(uid) != 16 {
		return nil, fmt.Errorf("invalid sandbox uid %q: want 16 hex chars", uid)
	}
	if _, err := hex.DecodeString(uid); err != nil {
		return nil, fmt.Errorf("invalid sandbox uid %q: %v", uid, err)
	}

	sb := &sandbox{
		uid:  uid,
		root: filepath.Join(overlayHome, sandboxDir, uid),
	}

	logrus.Debugf("Sandbox %s overlay rooted at %s", uid, sb.root)

	return sb, nil
}

func newUID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("sandbox uid generation error: %v", err)
	}
	return hex.EncodeToString(b[:]), nil
}

func (sb *sandbox) UID() string {
	return sb.uid
}

func (sb *sandbox) Root() string {
	return sb.root
}

// CowPath maps a host path to its staged copy under the cow subtree.
func (sb *sandbox) CowPath(hostPath string) string {
	return filepath.Join(sb.root, cowSubtree, hostPath)
}

// TmpPath maps a guest /tmp suffix to the private tmp subtree.
func (sb *sandbox) TmpPath(suffix string) string {
	suffix = strings.TrimPrefix(suffix, "/")
	return filepath.Join(sb.root, tmpSubtree, suffix)
}

// EnsureDirs materializes the parent chain of the given overlay location.
func (sb *sandbox) EnsureDirs(path string) error {
	return AppFs.MkdirAll(filepath.Dir(path), 0755)
}

// Teardown removes the sandbox's overlay tree. Not required for
// correctness (uids never collide across live sandboxes) but keeps the
// overlay home from accumulating state.
func (sb *sandbox) Teardown() error {
	if err := AppFs.RemoveAll(sb.root); err != nil {
		logrus.Warnf("Sandbox %s overlay teardown error: %v", sb.uid, err)
		return err
	}
	return nil
}
