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

package process

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvisor/bvisor/domain"
)

// fakeProcStatus plants a /proc/<pid>/status entry in the test fs.
func fakeProcStatus(t *testing.T, fs afero.Fs, pid, ppid uint32) {
	t.Helper()

	content := fmt.Sprintf("Name:\tguest\nPid:\t%d\nPPid:\t%d\nNSpid:\t%d\n",
		pid, ppid, pid)
	err := afero.WriteFile(fs,
		fmt.Sprintf("/proc/%d/status", pid), []byte(content), 0444)
	require.NoError(t, err)
}

func TestRegistryRegisterRoot(t *testing.T) {
	prs := NewProcessService()

	root, err := prs.RegisterRoot(100)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), root.Pid())
	assert.Nil(t, root.Parent())

	// Exactly once per sandbox.
	_, err = prs.RegisterRoot(101)
	assert.ErrorIs(t, err, ErrRootRegistered)

	assert.Same(t, root, prs.Get(100))
	assert.Nil(t, prs.Get(999))
}

func TestRegistryRegisterChild(t *testing.T) {
	prs := NewProcessService()
	root, err := prs.RegisterRoot(100)
	require.NoError(t, err)

	child, err := prs.RegisterChild(root, 200, 0)
	require.NoError(t, err)
	assert.Same(t, root, child.Parent())

	// Default clone semantics: same namespace, private fd-table copy.
	assert.Same(t, root.Namespace(), child.Namespace())
	assert.NotSame(t, root.FdTable(), child.FdTable())

	// Duplicate registration is rejected.
	_, err = prs.RegisterChild(root, 200, 0)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegistryCloneFlags(t *testing.T) {
	prs := NewProcessService()
	root, _ := prs.RegisterRoot(100)

	// CLONE_FILES shares the parent's table.
	sharer, err := prs.RegisterChild(root, 200, domain.CloneFiles)
	require.NoError(t, err)
	assert.Same(t, root.FdTable(), sharer.FdTable())
	assert.Equal(t, 2, root.FdTable().Refs())

	// CLONE_NEWPID chains a fresh descendant namespace with the child as
	// its pid-1 root.
	nsChild, err := prs.RegisterChild(root, 300, domain.CloneNewPid)
	require.NoError(t, err)
	assert.NotSame(t, root.Namespace(), nsChild.Namespace())
	assert.Same(t, root.Namespace(), nsChild.Namespace().Parent())

	nsPid, ok := nsChild.Namespace().NsPid(nsChild)
	require.True(t, ok)
	assert.Equal(t, uint32(1), nsPid)
}

// getppid semantics: a parent on the other side of a pid-namespace
// boundary is not visible to the child.
func TestRegistryVisibilityAcrossNamespace(t *testing.T) {
	prs := NewProcessService()
	parent, _ := prs.RegisterRoot(100)

	child, err := prs.RegisterChild(parent, 200, domain.CloneNewPid)
	require.NoError(t, err)

	assert.True(t, prs.CanSee(parent, child))
	assert.False(t, prs.CanSee(child, parent))

	sibling, err := prs.RegisterChild(parent, 300, 0)
	require.NoError(t, err)
	assert.True(t, prs.CanSee(sibling, child))
	assert.False(t, prs.CanSee(child, sibling))
}

func TestRegistryKillSubtree(t *testing.T) {
	prs := NewProcessService()
	root, _ := prs.RegisterRoot(100)
	c1, _ := prs.RegisterChild(root, 200, 0)
	c2, _ := prs.RegisterChild(c1, 300, domain.CloneNewPid)
	_, _ = prs.RegisterChild(c2, 400, 0)

	rootNs := root.Namespace()

	prs.Kill(200)

	// The whole subtree is gone, root survives.
	assert.Nil(t, prs.Get(200))
	assert.Nil(t, prs.Get(300))
	assert.Nil(t, prs.Get(400))
	assert.Same(t, root, prs.Get(100))

	// Victims were unregistered from every namespace they belonged to.
	assert.False(t, rootNs.Contains(c1))
	assert.False(t, rootNs.Contains(c2))
}

func TestRegistryKillClosesFiles(t *testing.T) {
	prs := NewProcessService()
	root, _ := prs.RegisterRoot(100)
	child, _ := prs.RegisterChild(root, 200, 0)

	f := &testFile{}
	_, err := child.FdTable().Insert(f)
	require.NoError(t, err)

	prs.Kill(200)
	assert.True(t, f.closed)
}

func TestRegistryLazyDiscovery(t *testing.T) {
	fs := afero.NewMemMapFs()
	oldFs := AppFs
	AppFs = fs
	defer func() { AppFs = oldFs }()

	prs := NewProcessService()
	root, err := prs.RegisterRoot(100)
	require.NoError(t, err)

	fakeProcStatus(t, fs, 100, 1)
	fakeProcStatus(t, fs, 200, 100)

	// A process outside the sandbox's subtree must not be picked up.
	fakeProcStatus(t, fs, 900, 1)

	require.NoError(t, prs.SyncNew())

	child := prs.Get(200)
	require.NotNil(t, child)
	assert.Same(t, root, child.Parent())
	assert.Nil(t, prs.Get(900))

	// Exactly one virtual process per kernel pid, even across repeat syncs.
	require.NoError(t, prs.SyncNew())
	assert.Same(t, child, prs.Get(200))
}

// A freshly-cloned grandchild can notify before the supervisor has seen
// its parent: sync-new must register the intermediate ancestors first.
func TestRegistryLazyChildBeforeClone(t *testing.T) {
	fs := afero.NewMemMapFs()
	oldFs := AppFs
	AppFs = fs
	defer func() { AppFs = oldFs }()

	prs := NewProcessService()
	root, err := prs.RegisterRoot(100)
	require.NoError(t, err)

	// Kernel view: 100 -> 200 -> 300, with only 100 registered.
	fakeProcStatus(t, fs, 100, 1)
	fakeProcStatus(t, fs, 200, 100)
	fakeProcStatus(t, fs, 300, 200)

	require.NoError(t, prs.SyncNew())

	mid := prs.Get(200)
	leaf := prs.Get(300)
	require.NotNil(t, mid)
	require.NotNil(t, leaf)
	assert.Same(t, root, mid.Parent())
	assert.Same(t, mid, leaf.Parent())

	// Discovered processes live in the root's namespace view.
	assert.True(t, prs.CanSee(root, leaf))
}
