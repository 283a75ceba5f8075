// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package proc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// New returns the platform Inspector. On Unix it reads /proc and
// signals with unix.Kill.
func New() Inspector { return unixInspector{root: "/proc"} }

// unixInspector reads the proc filesystem rooted at root (injectable
// for tests).
type unixInspector struct {
	root string
}

func (in unixInspector) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	// EPERM means the process exists but belongs to someone else.
	return err == nil || errors.Is(err, unix.EPERM)
}

func (in unixInspector) MemoryBytes(pid int) (int64, error) {
	status, err := os.ReadFile(filepath.Join(in.root, strconv.Itoa(pid), "status"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrProcessNotFound
		}
		return 0, fmt.Errorf("reading status for pid %d: %w", pid, err)
	}
	return parseVMRSS(string(status))
}

func (in unixInspector) ExecutablePath(pid int) (string, error) {
	path, err := os.Readlink(filepath.Join(in.root, strconv.Itoa(pid), "exe"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrProcessNotFound
		}
		return "", fmt.Errorf("resolving executable for pid %d: %w", pid, err)
	}
	// The kernel appends " (deleted)" when the binary was replaced
	// underneath a running process.
	return strings.TrimSuffix(path, " (deleted)"), nil
}

// KillTree terminates pid and its descendants, children first so
// orphans cannot re-parent mid-walk and escape.
func (in unixInspector) KillTree(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("refusing to kill invalid pid %d", pid)
	}
	for _, child := range in.children(pid) {
		// Best effort per child; the parent kill below is the one
		// whose failure matters.
		_ = in.KillTree(child)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("killing pid %d: %w", pid, err)
	}
	return nil
}

// children scans /proc for processes whose ppid is pid.
func (in unixInspector) children(pid int) []int {
	entries, err := os.ReadDir(in.root)
	if err != nil {
		return nil
	}
	var children []int
	for _, entry := range entries {
		candidate, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		stat, err := os.ReadFile(filepath.Join(in.root, entry.Name(), "stat"))
		if err != nil {
			continue
		}
		ppid, err := parseStatPPID(string(stat))
		if err == nil && ppid == pid {
			children = append(children, candidate)
		}
	}
	return children
}

// ListenerPID finds the listening socket's inode in /proc/net/tcp,
// then the process holding it by scanning fd symlinks.
func (in unixInspector) ListenerPID(port int) (int, error) {
	inodes := make(map[uint64]bool)
	for _, table := range []string{"net/tcp", "net/tcp6"} {
		document, err := os.ReadFile(filepath.Join(in.root, table))
		if err != nil {
			continue
		}
		for _, inode := range parseProcNetTCP(string(document), port) {
			inodes[inode] = true
		}
	}
	if len(inodes) == 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(in.root)
	if err != nil {
		return 0, fmt.Errorf("scanning process table: %w", err)
	}
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		fdDir := filepath.Join(in.root, entry.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue // Process exited or not ours to inspect.
		}
		for _, fd := range fds {
			target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			inode, found := strings.CutPrefix(target, "socket:[")
			if !found {
				continue
			}
			value, err := strconv.ParseUint(strings.TrimSuffix(inode, "]"), 10, 64)
			if err == nil && inodes[value] {
				return pid, nil
			}
		}
	}
	return 0, nil
}
