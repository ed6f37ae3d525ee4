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

package implementations

import (
	"fmt"
	"syscall"

	"github.com/bvisor/bvisor/domain"
)

// guestName is the fixed process name reported by virtualized status files.
const guestName = "bvisor"

// resolveCaller maps the requesting kernel pid to its virtual process.
func resolveCaller(
	hs domain.HandlerServiceIface,
	req *domain.HandlerRequest) (domain.ProcessIface, error) {

	caller := hs.ProcessService().Get(req.Pid)
	if caller == nil {
		return nil, syscall.ESRCH
	}
	return caller, nil
}

// resolveTarget names the process a /proc/<N> path refers to. N is
// interpreted as a namespace-relative pid in the caller's namespace view;
// when no member holds that ns-pid, N is retried as a kernel pid, accepted
// only if the result is visible to the caller. Anything else is ENOENT.
func resolveTarget(
	hs domain.HandlerServiceIface,
	caller domain.ProcessIface,
	nsPid uint32) (domain.ProcessIface, error) {

	if target, ok := caller.Namespace().Resolve(nsPid); ok {
		return target, nil
	}

	if target := hs.ProcessService().Get(nsPid); target != nil {
		if hs.ProcessService().CanSee(caller, target) {
			return target, nil
		}
	}

	return nil, syscall.ENOENT
}

// renderStatus synthesizes the status file for target as seen from the
// caller's namespace.
func renderStatus(caller, target domain.ProcessIface) ([]byte, error) {
	nsPid, ok := caller.Namespace().NsPid(target)
	if !ok {
		return nil, syscall.ENOENT
	}

	var nsPPid uint32
	if parent := target.Parent(); parent != nil {
		if id, ok := caller.Namespace().NsPid(parent); ok {
			nsPPid = id
		}
	}

	content := fmt.Sprintf("Name:\t%s\nPid:\t%d\nPPid:\t%d\n",
		guestName, nsPid, nsPPid)

	return []byte(content), nil
}

// renderPidDir synthesizes the directory-entry content for /proc/<N> and
// /proc/self: the target's ns-pid in the caller's view.
func renderPidDir(caller, target domain.ProcessIface) ([]byte, error) {
	nsPid, ok := caller.Namespace().NsPid(target)
	if !ok {
		return nil, syscall.ENOENT
	}
	return []byte(fmt.Sprintf("%d\n", nsPid)), nil
}
