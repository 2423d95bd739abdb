// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package lock enforces single-writer-per-(directory, scheme) and cleans up
// transient state on exit.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// syscallSig0 is the null signal used to probe process liveness without
// affecting the target (kill(pid, 0) semantics).
const syscallSig0 = syscall.Signal(0)

// ErrHeld is returned by Acquire when another live process already holds
// the lock.
var ErrHeld = errors.New("lock: already running")

// Lock represents an acquired single-writer lock for one (directory,
// scheme) pair.
type Lock struct {
	path string
	file *os.File
}

// Name computes the stable lock filename for (exeIdentity, dir, schemeID):
// a farmhash of the three joined together, matching the convention used
// elsewhere in this codebase for deterministic, collision-resistant names
// derived from content rather than randomness.
func Name(exeIdentity, dir string, schemeID int) string {
	key := fmt.Sprintf("%s\x00%s\x00%d", exeIdentity, dir, schemeID)
	h := farm.Hash64WithSeed([]byte(key), 0)
	return "lincodes_" + strconv.FormatUint(h, 16)
}

// Acquire takes the single-writer lock for (dir, schemeID). lockDir is the
// directory the ".locks" subdirectory lives under (normally the scheme
// directory). If a stale lock (recorded pid no longer alive) is found, it is
// reclaimed: when no other descriptor holds its flock the file is
// overwritten with this process's pid; otherwise it is removed and
// acquisition is retried once. If a live lock is found, Acquire returns
// ErrHeld.
func Acquire(lockDir, exeIdentity string, schemeID int) (*Lock, error) {
	dir := filepath.Join(lockDir, ".locks")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "lock: create lock dir %s", dir)
	}
	path := filepath.Join(dir, Name(exeIdentity, lockDir, schemeID))

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
		if err != nil {
			return nil, errors.Wrapf(err, "lock: open %s", path)
		}
		if ferr := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); ferr != nil {
			f.Close()
			if ferr == unix.EWOULDBLOCK {
				if live, rerr := holderLive(path); rerr == nil && live {
					return nil, ErrHeld
				}
				// Flock contention but the recorded holder is dead or
				// unreadable: treat the same as a stale lock below and
				// retry once the file is removed.
				os.Remove(path)
				continue
			}
			return nil, errors.Wrapf(ferr, "lock: flock %s", path)
		}

		live, err := holderLive(path)
		if err == nil && live {
			unix.Flock(int(f.Fd()), unix.LOCK_UN)
			f.Close()
			return nil, ErrHeld
		}

		if err := f.Truncate(0); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "lock: truncate %s", path)
		}
		if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "lock: write holder pid to %s", path)
		}
		return &Lock{path: path, file: f}, nil
	}
	return nil, errors.Errorf("lock: could not acquire %s after removing stale lock", path)
}

// holderLive reports whether the pid recorded in the lock file at path
// names a still-live process. A malformed or empty file is treated as
// "not live" so the caller reclaims it.
func holderLive(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return false, nil
	}
	pid, err := strconv.Atoi(s)
	if err != nil {
		return false, nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}
	// On POSIX, FindProcess always succeeds; signal 0 probes liveness
	// without affecting the target.
	if err := proc.Signal(syscallSig0); err != nil {
		return false, nil
	}
	return true, nil
}

// Release removes the lock file and releases the flock, making the lock
// available to the next process. It is always safe to call from a defer.
func (l *Lock) Release() error {
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if err := l.file.Close(); err != nil {
		log.Error.Printf("lock: close %s: %v", l.path, err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "lock: remove %s", l.path)
	}
	return nil
}

// CleanTempDir removes every file directly under dir. It is used on normal
// exit and on unhandled fatal error to clear transient distance-matrix
// files left in the secure temp directory.
func CleanTempDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "lock: read temp dir %s", dir)
	}
	var firstErr error
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return errors.Wrapf(firstErr, "lock: clean temp dir %s", dir)
	}
	return nil
}
