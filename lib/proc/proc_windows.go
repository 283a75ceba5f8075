// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package proc

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// New returns the platform Inspector. On Windows it shells out to
// tasklist, wmic, netstat, and taskkill.
func New() Inspector { return windowsInspector{} }

type windowsInspector struct{}

func (windowsInspector) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	output, err := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/FO", "CSV", "/NH").Output()
	if err != nil {
		return false
	}
	_, err = parseTasklistMemory(string(output))
	return err == nil
}

func (windowsInspector) MemoryBytes(pid int) (int64, error) {
	output, err := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/FO", "CSV", "/NH").Output()
	if err != nil {
		return 0, fmt.Errorf("tasklist for pid %d: %w", pid, err)
	}
	return parseTasklistMemory(string(output))
}

func (windowsInspector) ExecutablePath(pid int) (string, error) {
	output, err := exec.Command("wmic", "process", "where",
		fmt.Sprintf("ProcessId=%d", pid), "get", "ExecutablePath", "/format:list").Output()
	if err != nil {
		return "", fmt.Errorf("wmic for pid %d: %w", pid, err)
	}
	return parseWMICExecutablePath(string(output))
}

func (windowsInspector) KillTree(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("refusing to kill invalid pid %d", pid)
	}
	output, err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).CombinedOutput()
	if err != nil {
		// An already-exited target is success, not failure.
		if strings.Contains(strings.ToLower(string(output)), "not found") {
			return nil
		}
		return fmt.Errorf("taskkill pid %d: %w (%s)", pid, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (windowsInspector) ListenerPID(port int) (int, error) {
	output, err := exec.Command("netstat", "-ano").Output()
	if err != nil {
		return 0, fmt.Errorf("netstat: %w", err)
	}
	return parseNetstatListenerPID(string(output), port), nil
}
