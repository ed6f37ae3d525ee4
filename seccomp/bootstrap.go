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

package seccomp

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// GuestInitEnvKey marks a process as the re-exec'ed guest branch of the
// bootstrap. Go cannot fork without exec'ing, so the "guest side of the
// fork" is this binary re-executed with the marker set; it installs the
// filter and then execs the real workload.
const GuestInitEnvKey = "_BVISOR_GUEST_INIT"

// The bootstrap channel rides on fd 3 in the guest (first ExtraFiles slot).
const bootstrapChannelFd = 3

// Descriptor-fetch retry budget. The guest needs a few scheduler quanta to
// send its prediction and load the filter.
const (
	fetchMaxAttempts = 100
	fetchRetryDelay  = 5 * time.Millisecond
)

// bootstrapResult is what the supervisor needs to start tracing: the guest
// kernel pid and a supervisor-local fd referring to the guest's notifier.
type bootstrapResult struct {
	cmd      *exec.Cmd
	guestPid uint32
	notifFd  int32
}

// launchGuest forks the guest (via re-exec), waits for its notifier-fd
// prediction on the bootstrap channel, and fetches a supervisor-local
// duplicate of the notifier through the guest's pidfd. Every failure here
// is fatal to the sandbox: the guest is killed before the error returns.
func launchGuest(workload []string) (*bootstrapResult, error) {
	if len(workload) == 0 {
		return nil, fmt.Errorf("bootstrap error: empty workload")
	}

	supSock, guestSock, err := bootstrapSocketPair()
	if err != nil {
		return nil, err
	}
	defer supSock.Close()
	defer guestSock.Close()

	cmd := exec.Command("/proc/self/exe", workload...)
	cmd.Env = append(os.Environ(), GuestInitEnvKey+"=1")
	cmd.ExtraFiles = []*os.File{guestSock}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("bootstrap fork error: %v", err)
	}
	guestPid := uint32(cmd.Process.Pid)

	// The guest's copy of its channel end lives on; drop ours so a guest
	// death surfaces as EOF below.
	guestSock.Close()

	predicted, err := readPrediction(supSock)
	if err != nil {
		teardownGuest(cmd)
		return nil, err
	}

	notifFd, err := fetchNotifierFd(guestPid, predicted)
	if err != nil {
		teardownGuest(cmd)
		return nil, err
	}

	logrus.Debugf("Bootstrapped guest pid %d, notifier fd %d (predicted guest fd %d)",
		guestPid, notifFd, predicted)

	return &bootstrapResult{cmd: cmd, guestPid: guestPid, notifFd: notifFd}, nil
}

// bootstrapSocketPair creates the SOCK_SEQPACKET pair carrying the guest's
// 4-byte fd prediction.
func bootstrapSocketPair() (*os.File, *os.File, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap socketpair error: %v", err)
	}

	return os.NewFile(uintptr(fds[0]), "bootstrap-sup"),
		os.NewFile(uintptr(fds[1]), "bootstrap-guest"), nil
}

// readPrediction reads the guest's predicted notifier fd number: a 4-byte
// little-endian integer. EOF means the guest died before predicting.
func readPrediction(sock *os.File) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(sock, buf[:]); err != nil {
		return -1, fmt.Errorf("bootstrap prediction read error: %v", err)
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

// fetchNotifierFd polls pidfd_getfd(2) for the predicted descriptor in the
// guest's table until the guest has loaded its filter, with a bounded
// retry budget.
func fetchNotifierFd(guestPid uint32, predicted int32) (int32, error) {
	pidfd, err := unix.PidfdOpen(int(guestPid), 0)
	if err != nil {
		return -1, fmt.Errorf("bootstrap pidfd error for guest %d: %v", guestPid, err)
	}
	defer unix.Close(pidfd)

	for attempt := 0; attempt < fetchMaxAttempts; attempt++ {
		fd, err := unix.PidfdGetfd(pidfd, int(predicted), 0)
		if err == nil {
			return int32(fd), nil
		}
		if err != unix.EBADF && err != unix.EPERM {
			return -1, fmt.Errorf("bootstrap descriptor-fetch error for guest %d fd %d: %v",
				guestPid, predicted, err)
		}

		// The guest has not installed the filter yet.
		time.Sleep(fetchRetryDelay)
	}

	return -1, fmt.Errorf("bootstrap descriptor-fetch exhausted for guest %d fd %d",
		guestPid, predicted)
}

func teardownGuest(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}
}

// GuestInit is the guest branch of the bootstrap. It must be invoked first
// thing by the embedding binary when GuestInitEnvKey is set: it predicts
// the notifier fd number, publishes the prediction, installs the syscall
// filter and execs the workload. It only returns on error.
func GuestInit(workload []string) error {

	// seccomp and prctl act on the calling thread; this process execs or
	// dies, so the thread is never unlocked.
	runtime.LockOSThread()

	if len(workload) == 0 {
		return fmt.Errorf("guest-init error: no workload to exec")
	}

	sock := os.NewFile(uintptr(bootstrapChannelFd), "bootstrap-guest")
	if sock == nil {
		return fmt.Errorf("guest-init error: bootstrap channel fd missing")
	}

	// Predict the notifier's fd number: duplicate any live fd and release
	// the duplicate; the next allocation gets that number. The prediction
	// must be published before the filter is installed, because a write
	// through a filtered socket would itself block on notification.
	dupFd, err := unix.Dup(0)
	if err != nil {
		return fmt.Errorf("guest-init prediction error: %v", err)
	}
	if err := unix.Close(dupFd); err != nil {
		return fmt.Errorf("guest-init prediction error: %v", err)
	}
	predicted := int32(dupFd)

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(predicted))
	if _, err := sock.Write(buf[:]); err != nil {
		return fmt.Errorf("guest-init prediction send error: %v", err)
	}

	builder := &filterBuilder{
		Notify: notifySet(defaultRoutes()),
		Deny:   denySet(defaultRoutes()),
	}

	notifFd, err := builder.install()
	if err != nil {
		return fmt.Errorf("guest-init filter error: %v", err)
	}

	if notifFd != predicted {
		return fmt.Errorf("guest-init prediction mismatch: predicted fd %d, got %d",
			predicted, notifFd)
	}

	// The bootstrap channel stays open through the filter load: closing it
	// earlier would free its fd number and invalidate the prediction.
	sock.Close()

	// The notifier must outlive the exec: the kernel tears the filter's
	// listener down when its last fd closes, and the supervisor may not
	// have fetched its duplicate yet.
	if _, err := unix.FcntlInt(uintptr(notifFd), unix.F_SETFD, 0); err != nil {
		return fmt.Errorf("guest-init notifier fd error: %v", err)
	}

	path, err := exec.LookPath(workload[0])
	if err != nil {
		return fmt.Errorf("guest-init workload lookup error: %v", err)
	}

	return unix.Exec(path, workload, os.Environ())
}
