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

package state

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bvisor/bvisor/domain"
)

// SandboxDB tracks the sandboxes hosted by one embedding process, keyed by
// overlay uid. Each supervisor's state is fully private; the DB only
// guards uid uniqueness and supports lookup and removal by uid. It has no
// method that enumerates its entries. Unlike the
// per-sandbox structures, the DB is shared across supervisor goroutines,
// hence the lock.
type SandboxDB struct {
	sync.RWMutex
	uidTable map[string]domain.OverlayIface
}

func NewSandboxDB() *SandboxDB {
	return &SandboxDB{
		uidTable: make(map[string]domain.OverlayIface),
	}
}

func (db *SandboxDB) Add(sb domain.OverlayIface) error {
	db.Lock()
	defer db.Unlock()

	if _, ok := db.uidTable[sb.UID()]; ok {
		logrus.Errorf("Sandbox addition error: uid %s already present", sb.UID())
		return errors.New("sandbox uid already present")
	}
	db.uidTable[sb.UID()] = sb

	return nil
}

func (db *SandboxDB) Lookup(uid string) domain.OverlayIface {
	db.RLock()
	defer db.RUnlock()

	return db.uidTable[uid]
}

func (db *SandboxDB) Remove(uid string) bool {
	db.Lock()
	defer db.Unlock()

	if _, ok := db.uidTable[uid]; !ok {
		return false
	}
	delete(db.uidTable, uid)

	return true
}

func (db *SandboxDB) Len() int {
	db.RLock()
	defer db.RUnlock()

	return len(db.uidTable)
}
