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

package sysio_test

import (
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvisor/bvisor/domain"
	"github.com/bvisor/bvisor/handler"
	"github.com/bvisor/bvisor/process"
	"github.com/bvisor/bvisor/state"
	"github.com/bvisor/bvisor/sysio"
)

type testEnv struct {
	fs  afero.Fs
	ovl domain.OverlayIface
	ios domain.FileServiceIface
	prs domain.ProcessServiceIface
}

// newTestEnv fakes the host disk with a MemMapFs shared by the overlay
// and the backends, and wires a file service over a fresh sandbox.
func newTestEnv(t *testing.T, uid string) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()

	oldSysioFs, oldStateFs := sysio.AppFs, state.AppFs
	sysio.AppFs, state.AppFs = fs, fs
	t.Cleanup(func() {
		sysio.AppFs, state.AppFs = oldSysioFs, oldStateFs
	})

	ovl, err := state.NewSandboxWithUID(uid)
	require.NoError(t, err)

	prs := process.NewProcessService()
	hds := handler.NewHandlerService(handler.DefaultHandlers)
	hds.Setup(prs)

	ios := sysio.NewIOService()
	ios.Setup(ovl, hds)

	return &testEnv{fs: fs, ovl: ovl, ios: ios, prs: prs}
}

const (
	wrFlags = syscall.O_WRONLY | syscall.O_CREAT | syscall.O_TRUNC
	rdFlags = syscall.O_RDONLY
)

// Virtual tmp roundtrip: write through the tmp backend, read the content
// back through a fresh open.
func TestTmpRoundtrip(t *testing.T) {
	env := newTestEnv(t, "0000000000000001")

	f, err := env.ios.Open(domain.RouteTmp, "/tmp/test.txt", wrFlags, 0644, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.BackendTmp, f.Backend())

	n, err := f.Write([]byte("hello tmp"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	require.NoError(t, f.Close())

	f, err = env.ios.Open(domain.RouteTmp, "/tmp/test.txt", rdFlags, 0, 100)
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, "hello tmp", string(buf[:n]))
	require.NoError(t, f.Close())

	// The guest path never materializes on the host side.
	exists, err := afero.Exists(env.fs, "/tmp/test.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

// Two sandboxes with distinct uids write the same guest path; each reads
// back its own content.
func TestTmpIsolation(t *testing.T) {
	env1 := newTestEnv(t, "0000000000000001")

	// Both sandboxes share the faked host disk.
	env2 := &testEnv{fs: env1.fs}
	ovl2, err := state.NewSandboxWithUID("0000000000000002")
	require.NoError(t, err)
	env2.ovl = ovl2
	ios2 := sysio.NewIOService()
	ios2.Setup(ovl2, nil)
	env2.ios = ios2

	for _, tc := range []struct {
		env     *testEnv
		content string
	}{
		{env1, "sandbox one"},
		{env2, "sandbox two"},
	} {
		f, err := tc.env.ios.Open(domain.RouteTmp, "/tmp/test.txt", wrFlags, 0644, 100)
		require.NoError(t, err)
		_, err = f.Write([]byte(tc.content))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	for _, tc := range []struct {
		env     *testEnv
		content string
	}{
		{env1, "sandbox one"},
		{env2, "sandbox two"},
	} {
		f, err := tc.env.ios.Open(domain.RouteTmp, "/tmp/test.txt", rdFlags, 0, 100)
		require.NoError(t, err)
		buf := make([]byte, 64)
		n, err := f.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, tc.content, string(buf[:n]))
		require.NoError(t, f.Close())
	}
}

// A blocked decision never reaches a backend.
func TestOpenBlocked(t *testing.T) {
	env := newTestEnv(t, "0000000000000001")

	_, err := env.ios.Open(domain.RouteBlocked, "/sys/class/net", rdFlags, 0, 100)
	assert.ErrorIs(t, err, syscall.EACCES)
}

func TestCowReadPassthrough(t *testing.T) {
	env := newTestEnv(t, "0000000000000001")

	require.NoError(t, afero.WriteFile(env.fs, "/etc/hosts", []byte("127.0.0.1\n"), 0644))

	f, err := env.ios.Open(domain.RouteCow, "/etc/hosts", rdFlags, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.BackendCow, f.Backend())

	buf := make([]byte, 64)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1\n", string(buf[:n]))

	// A read-only open that staged nothing cannot write.
	_, err = f.Write([]byte("x"))
	assert.ErrorIs(t, err, syscall.EROFS)
	require.NoError(t, f.Close())
}

func TestCowStagingOnWrite(t *testing.T) {
	env := newTestEnv(t, "0000000000000001")

	require.NoError(t, afero.WriteFile(env.fs, "/etc/hosts", []byte("original"), 0644))

	// Write-mode open stages a copy seeded with the host content.
	f, err := env.ios.Open(domain.RouteCow, "/etc/hosts", syscall.O_RDWR, 0, 100)
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "original", string(buf[:n]))
	require.NoError(t, f.Close())

	// Mutate the staged copy.
	f, err = env.ios.Open(domain.RouteCow, "/etc/hosts", syscall.O_WRONLY|syscall.O_TRUNC, 0, 100)
	require.NoError(t, err)
	_, err = f.Write([]byte("modified"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Later reads land on the staged copy, not the host file.
	f, err = env.ios.Open(domain.RouteCow, "/etc/hosts", rdFlags, 0, 100)
	require.NoError(t, err)
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "modified", string(buf[:n]))
	require.NoError(t, f.Close())

	// The host file itself is untouched.
	host, err := afero.ReadFile(env.fs, "/etc/hosts")
	require.NoError(t, err)
	assert.Equal(t, "original", string(host))
}

func TestCowCreateMissingFile(t *testing.T) {
	env := newTestEnv(t, "0000000000000001")

	f, err := env.ios.Open(domain.RouteCow, "/home/user/new.txt", wrFlags, 0644, 100)
	require.NoError(t, err)
	_, err = f.Write([]byte("fresh"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	staged, err := afero.ReadFile(env.fs, env.ovl.CowPath("/home/user/new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(staged))
}

func TestProcNodeCursor(t *testing.T) {
	env := newTestEnv(t, "0000000000000001")

	_, err := env.prs.RegisterRoot(100)
	require.NoError(t, err)

	f, err := env.ios.Open(domain.RouteProc, "/proc/self/status", rdFlags, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.BackendProc, f.Backend())

	// Reads advance the per-open cursor until EOF.
	var content []byte
	buf := make([]byte, 8)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			content = append(content, buf[:n]...)
		}
		if err != nil || n == 0 {
			break
		}
	}

	assert.Contains(t, string(content), "Pid:\t1\n")
	assert.LessOrEqual(t, len(content), domain.ProcRenderMax)

	_, err = f.Write([]byte("nope"))
	assert.ErrorIs(t, err, syscall.EROFS)
	require.NoError(t, f.Close())
}
