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
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// AppFs is the filesystem the package reads the kernel's procfs through.
// Tests swap in an afero.MemMapFs to fake /proc state.
var AppFs = afero.NewOsFs()

// procStatus holds the subset of /proc/<pid>/status fields the supervisor
// consumes.
type procStatus struct {
	name   string
	pid    uint32
	ppid   uint32
	nsPids []uint32 // NSpid chain, outermost namespace first
}

// readProcStatus parses /proc/<pid>/status from the kernel's view.
func readProcStatus(pid uint32) (*procStatus, error) {
	filename := fmt.Sprintf("/proc/%d/status", pid)

	f, err := AppFs.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st := &procStatus{pid: pid}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		val := strings.TrimSpace(parts[1])

		switch parts[0] {
		case "Name":
			st.name = val

		case "PPid":
			ppid, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid PPid field in %s: %q", filename, val)
			}
			st.ppid = uint32(ppid)

		case "NSpid":
			for _, tok := range strings.Fields(val) {
				nsPid, err := strconv.ParseUint(tok, 10, 32)
				if err != nil {
					return nil, fmt.Errorf("invalid NSpid field in %s: %q", filename, val)
				}
				st.nsPids = append(st.nsPids, uint32(nsPid))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return st, nil
}

// NsPidChain returns the kernel-reported NSpid chain for the given pid,
// outermost namespace first.
func NsPidChain(pid uint32) ([]uint32, error) {
	st, err := readProcStatus(pid)
	if err != nil {
		return nil, err
	}
	return st.nsPids, nil
}

// listProcPids enumerates the numeric entries of /proc.
func listProcPids() ([]uint32, error) {
	infos, err := afero.ReadDir(AppFs, "/proc")
	if err != nil {
		return nil, err
	}

	var pids []uint32
	for _, fi := range infos {
		if !fi.IsDir() {
			continue
		}
		pid, err := strconv.ParseUint(fi.Name(), 10, 32)
		if err != nil {
			continue
		}
		pids = append(pids, uint32(pid))
	}

	return pids, nil
}
