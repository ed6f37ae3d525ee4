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

package handler_test

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvisor/bvisor/domain"
	"github.com/bvisor/bvisor/handler"
	"github.com/bvisor/bvisor/process"
)

func newTestService(t *testing.T) (domain.HandlerServiceIface, domain.ProcessServiceIface) {
	t.Helper()

	prs := process.NewProcessService()
	hds := handler.NewHandlerService(handler.DefaultHandlers)
	hds.Setup(prs)

	return hds, prs
}

func TestLookupHandler(t *testing.T) {
	hds, _ := newTestService(t)

	tests := []struct {
		name    string
		path    string
		handler string
		target  uint32
		wantErr error
	}{
		{"self", "/proc/self", "procSelf", 0, nil},
		{"self status", "/proc/self/status", "procSelfStatus", 0, nil},
		{"numeric", "/proc/200", "procPid", 200, nil},
		{"numeric status", "/proc/200/status", "procPidStatus", 200, nil},
		{"unknown entry", "/proc/self/maps", "", 0, syscall.ENOENT},
		{"unknown root", "/proc", "", 0, syscall.ENOENT},
		{"pid zero", "/proc/0/status", "", 0, syscall.ENOENT},
		{"not proc", "/etc/hosts", "", 0, syscall.ENOENT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, req, err := hds.LookupHandler(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.handler, h.GetName())
			assert.Equal(t, tt.target, req.Target)
		})
	}
}

// Root (ns-pid 1) and a child (kernel pid 200, ns-pid 2) each read their
// own status; the root also reads the child's by kernel pid.
func TestRenderProcStatus(t *testing.T) {
	hds, prs := newTestService(t)

	root, err := prs.RegisterRoot(100)
	require.NoError(t, err)
	_, err = prs.RegisterChild(root, 200, 0)
	require.NoError(t, err)

	content, err := hds.Render("/proc/self/status", 100)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Pid:\t1\n")
	assert.Contains(t, string(content), "PPid:\t0\n")

	content, err = hds.Render("/proc/self/status", 200)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Pid:\t2\n")
	assert.Contains(t, string(content), "PPid:\t1\n")

	content, err = hds.Render("/proc/200/status", 100)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Pid:\t2\n")
	assert.Contains(t, string(content), "PPid:\t1\n")

	// Namespace-relative resolution takes precedence: ns-pid 2 names the
	// same process.
	content, err = hds.Render("/proc/2/status", 100)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Pid:\t2\n")
}

func TestRenderUnknownPid(t *testing.T) {
	hds, prs := newTestService(t)

	root, err := prs.RegisterRoot(100)
	require.NoError(t, err)

	_, err = hds.Render("/proc/42/status", 100)
	assert.ErrorIs(t, err, syscall.ENOENT)

	// A process behind a new pid-namespace cannot name its parent.
	child, err := prs.RegisterChild(root, 200, domain.CloneNewPid)
	require.NoError(t, err)
	_ = child

	_, err = hds.Render("/proc/100/status", 200)
	assert.ErrorIs(t, err, syscall.ENOENT)
}

func TestRenderSelf(t *testing.T) {
	hds, prs := newTestService(t)

	root, err := prs.RegisterRoot(100)
	require.NoError(t, err)
	_, err = prs.RegisterChild(root, 200, 0)
	require.NoError(t, err)

	content, err := hds.Render("/proc/self", 200)
	require.NoError(t, err)
	assert.Equal(t, "2\n", string(content))

	// Caller must be a registered process.
	_, err = hds.Render("/proc/self", 999)
	assert.ErrorIs(t, err, syscall.ESRCH)
}

func TestRenderBounded(t *testing.T) {
	hds, prs := newTestService(t)

	root, err := prs.RegisterRoot(100)
	require.NoError(t, err)
	_ = root

	content, err := hds.Render("/proc/self/status", 100)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(content), domain.ProcRenderMax)
}
