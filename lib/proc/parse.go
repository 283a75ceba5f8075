// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package proc

import (
	"fmt"
	"strconv"
	"strings"
)

// Pure parsers for the tool output and /proc file formats the
// platform implementations consume. Kept free of build tags so they
// are unit-tested on every platform.

// parseVMRSS extracts the resident set size in bytes from a
// /proc/pid/status document. The relevant line reads
// "VmRSS:     12345 kB".
func parseVMRSS(status string) (int64, error) {
	for _, line := range strings.Split(status, "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("malformed VmRSS line %q", line)
		}
		kilobytes, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing VmRSS value %q: %w", fields[1], err)
		}
		return kilobytes * 1024, nil
	}
	// Kernel threads have no VmRSS line; report zero residency.
	return 0, nil
}

// parseStatPPID extracts the parent pid from a /proc/pid/stat line.
// The comm field (2nd) may contain spaces and parentheses, so the
// line is split at the last ')' before reading field 4.
func parseStatPPID(stat string) (int, error) {
	closing := strings.LastIndexByte(stat, ')')
	if closing < 0 {
		return 0, fmt.Errorf("malformed stat line %q", stat)
	}
	fields := strings.Fields(stat[closing+1:])
	// After ")": state, ppid, ...
	if len(fields) < 2 {
		return 0, fmt.Errorf("stat line %q has too few fields", stat)
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("parsing ppid %q: %w", fields[1], err)
	}
	return ppid, nil
}

// parseProcNetTCP returns the socket inodes of listening sockets on
// the given local port from a /proc/net/tcp (or tcp6) document.
// Listening sockets have state 0A; the local port is the hex field
// after the colon in local_address.
func parseProcNetTCP(document string, port int) []uint64 {
	var inodes []uint64
	lines := strings.Split(document, "\n")
	for _, line := range lines[1:] { // Skip the header row.
		fields := strings.Fields(line)
		// sl local_address rem_address st ... uid timeout inode
		if len(fields) < 10 || fields[3] != "0A" {
			continue
		}
		colon := strings.LastIndexByte(fields[1], ':')
		if colon < 0 {
			continue
		}
		localPort, err := strconv.ParseInt(fields[1][colon+1:], 16, 32)
		if err != nil || int(localPort) != port {
			continue
		}
		inode, err := strconv.ParseUint(fields[9], 10, 64)
		if err != nil {
			continue
		}
		inodes = append(inodes, inode)
	}
	return inodes
}

// parseTasklistMemory extracts the working-set size in bytes from
// tasklist CSV output ("/FO CSV /NH"), e.g.
// "chrome.exe","1234","Console","1","524,288 K". Returns
// ErrProcessNotFound when the output carries no task row.
func parseTasklistMemory(output string) (int64, error) {
	line := strings.TrimSpace(output)
	if line == "" || strings.HasPrefix(strings.ToUpper(line), "INFO:") {
		return 0, ErrProcessNotFound
	}
	fields := strings.Split(line, "\",\"")
	if len(fields) < 5 {
		return 0, fmt.Errorf("malformed tasklist row %q", line)
	}
	memory := strings.Trim(fields[4], "\" \r\n")
	memory = strings.TrimSuffix(memory, " K")
	memory = strings.ReplaceAll(memory, ",", "")
	memory = strings.ReplaceAll(memory, ".", "")
	kilobytes, err := strconv.ParseInt(strings.TrimSpace(memory), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing tasklist memory %q: %w", fields[4], err)
	}
	return kilobytes * 1024, nil
}

// parseWMICExecutablePath extracts the path from
// "wmic process ... get ExecutablePath /format:list" output, which
// reads "ExecutablePath=C:\...\core-service.exe" amid blank lines.
func parseWMICExecutablePath(output string) (string, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if value, found := strings.CutPrefix(line, "ExecutablePath="); found {
			if value == "" {
				break
			}
			return value, nil
		}
	}
	return "", ErrProcessNotFound
}

// parseNetstatListenerPID extracts the owning pid of a LISTENING
// socket on the given local port from "netstat -ano" output. Returns
// 0 when no listener matches.
func parseNetstatListenerPID(output string, port int) int {
	suffix := ":" + strconv.Itoa(port)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		// Proto Local-Address Foreign-Address State PID
		if len(fields) < 5 || !strings.EqualFold(fields[0], "TCP") {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) || !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err == nil && pid > 0 {
			return pid
		}
	}
	return 0
}
