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

package domain

// OverlayIface is the per-sandbox on-disk staging area: a copy-on-write
// tree mirroring modified host paths plus a private /tmp tree. Two
// sandboxes with distinct uids never share overlay state.
type OverlayIface interface {
	UID() string
	Root() string

	// CowPath maps a host path to its staged location under the overlay's
	// cow tree; TmpPath maps a /tmp-relative suffix to the private tree.
	CowPath(hostPath string) string
	TmpPath(suffix string) string

	// EnsureDirs lazily materializes the parent chain for the given overlay
	// location.
	EnsureDirs(path string) error

	Teardown() error
}
