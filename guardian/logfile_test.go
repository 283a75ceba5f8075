// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package guardian

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestLaunchLogWriteAndPath(t *testing.T) {
	dir := t.TempDir()
	log, err := openLaunchLog(dir, "profile-1", "launch-1")
	if err != nil {
		t.Fatalf("openLaunchLog: %v", err)
	}
	defer log.Close()

	want := filepath.Join(dir, "profile-1", "guardian_launch-1.log")
	if log.Path() != want {
		t.Errorf("Path() = %q, want %q", log.Path(), want)
	}

	if _, err := log.Write([]byte("guardian active\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	contents, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != "guardian active\n" {
		t.Errorf("log contents = %q", contents)
	}
}

func TestLaunchLogRotatesAndCompresses(t *testing.T) {
	dir := t.TempDir()
	log, err := openLaunchLog(dir, "profile-1", "launch-1")
	if err != nil {
		t.Fatalf("openLaunchLog: %v", err)
	}
	defer log.Close()
	log.maxSize = 64

	first := []byte(strings.Repeat("first segment line\n", 3))
	if _, err := log.Write(first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// This write crosses the threshold: the first segment rotates out
	// and the live file starts over.
	second := []byte("second segment line\n")
	if _, err := log.Write(second); err != nil {
		t.Fatalf("Write: %v", err)
	}

	live, err := os.ReadFile(log.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(live, second) {
		t.Errorf("live log = %q, want only the post-rotation write", live)
	}

	rotated, err := filepath.Glob(log.Path() + ".*.zst")
	if err != nil || len(rotated) != 1 {
		t.Fatalf("rotated files = %v (err %v), want exactly one", rotated, err)
	}
	compressed, err := os.ReadFile(rotated[0])
	if err != nil {
		t.Fatal(err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer decoder.Close()
	decompressed, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		t.Fatalf("decompressing rotated log: %v", err)
	}
	if !bytes.Equal(decompressed, first) {
		t.Errorf("rotated contents = %q, want the first segment", decompressed)
	}
}

func TestLaunchLogAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	log, err := openLaunchLog(dir, "profile-1", "launch-1")
	if err != nil {
		t.Fatal(err)
	}
	log.Write([]byte("before restart\n"))
	log.Close()

	log, err = openLaunchLog(dir, "profile-1", "launch-1")
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()
	log.Write([]byte("after restart\n"))

	contents, err := os.ReadFile(log.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != "before restart\nafter restart\n" {
		t.Errorf("log contents = %q", contents)
	}
}
