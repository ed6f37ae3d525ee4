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

// Package router resolves absolute guest paths to a file-backend decision.
// The rule set is fixed at construction and queries are pure: normalization
// plus a longest-prefix lookup over an immutable radix tree of rule paths.
package router

import (
	"path/filepath"
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/bvisor/bvisor/domain"
)

// OverlayHome is the host location holding all sandbox overlays. Guest
// access to it is always blocked, regardless of the /tmp rule it nests in.
const OverlayHome = "/tmp/.bvisor"

// rule is one terminal decision attached to a path prefix.
type rule struct {
	path string
	dec  domain.RouteDecision
}

// Default rule table. Order is irrelevant: the radix tree picks the longest
// matching prefix, so more specific entries override their parents.
var defaultRules = []rule{
	{"/sys", domain.RouteBlocked},
	{"/run", domain.RouteBlocked},
	{"/dev", domain.RouteBlocked},
	{"/dev/null", domain.RoutePassthrough},
	{"/dev/zero", domain.RoutePassthrough},
	{"/dev/random", domain.RoutePassthrough},
	{"/dev/urandom", domain.RoutePassthrough},
	{"/proc", domain.RouteProc},
	{"/tmp", domain.RouteTmp},
	{OverlayHome, domain.RouteBlocked},
}

// defaultDecision applies to any path no rule prefix matches.
const defaultDecision = domain.RouteCow

type router struct {
	rules *iradix.Tree
}

// New builds the path router over the default rule table.
func New() domain.RouterIface {
	return newWithRules(defaultRules)
}

func newWithRules(rules []rule) domain.RouterIface {
	tree := iradix.New()

	for _, r := range rules {
		tree, _, _ = tree.Insert([]byte(r.path), r.dec)
	}

	return &router{rules: tree}
}

// Normalize resolves "." and ".." components and collapses redundant
// separators. Relative paths are returned untouched; callers reject them
// before routing.
func (r *router) Normalize(path string) string {
	if !filepath.IsAbs(path) {
		return path
	}
	return filepath.Clean(path)
}

// Route returns the backend decision for the given absolute path. The path
// is normalized first, so an escape such as /tmp/../sys/foo re-routes
// through the top-level rules.
func (r *router) Route(absPath string) domain.RouteDecision {
	path := r.Normalize(absPath)

	// Walk the radix tree towards the longest rule prefix that matches the
	// path on a component boundary. iradix finds the longest byte-wise
	// prefix; a byte-wise hit that splits a path component (e.g. "/tmpfoo"
	// against rule "/tmp") must be retried on the parent component.
	probe := path
	for {
		match, val, ok := r.rules.Root().LongestPrefix([]byte(probe))
		if !ok {
			return defaultDecision
		}
		if boundaryMatch(path, string(match)) {
			dec := val.(domain.RouteDecision)
			// Passthrough rules name terminal device entries: they apply to
			// the exact path only, a subpath falls back to the parent rule.
			if dec != domain.RoutePassthrough || string(match) == path {
				return dec
			}
		}

		// Shrink the probe below the failed rule and retry.
		probe = string(match[:len(match)-1])
		if !strings.HasPrefix(probe, "/") {
			return defaultDecision
		}
	}
}

// boundaryMatch reports whether prefix matches path exactly or at a '/'
// component boundary.
func boundaryMatch(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix) && path[len(prefix)] == '/'
}
