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
	"github.com/bvisor/bvisor/domain"
)

// ProcSelfStatusHandler virtualizes /proc/self/status. The pid fields hold
// namespace-relative values: the guest must not learn its kernel pid here.
type ProcSelfStatusHandler struct {
	Name    string
	Path    string
	Enabled bool
	Service domain.HandlerServiceIface
}

func (h *ProcSelfStatusHandler) Render(req *domain.HandlerRequest) ([]byte, error) {
	caller, err := resolveCaller(h.Service, req)
	if err != nil {
		return nil, err
	}

	return renderStatus(caller, caller)
}

func (h *ProcSelfStatusHandler) GetName() string {
	return h.Name
}

func (h *ProcSelfStatusHandler) GetPath() string {
	return h.Path
}

func (h *ProcSelfStatusHandler) GetEnabled() bool {
	return h.Enabled
}

func (h *ProcSelfStatusHandler) SetService(hs domain.HandlerServiceIface) {
	h.Service = hs
}
