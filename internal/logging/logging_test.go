package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetup_StderrOnly(t *testing.T) {
	var buf bytes.Buffer
	l, err := Setup(Options{Stderr: &buf})
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	defer l.Close()

	l.Logger("sync").Println("pass complete")

	if got := buf.String(); !strings.Contains(got, "[sync] ") || !strings.Contains(got, "pass complete") {
		t.Errorf("output = %q, want prefixed line", got)
	}
}

func TestSetup_File(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "lsync.log")

	l, err := Setup(Options{File: path, Stderr: &buf})
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	l.Logger("daemon").Printf("synced %d tables", 2)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if !strings.Contains(string(data), "[daemon] ") || !strings.Contains(string(data), "synced 2 tables") {
		t.Errorf("file = %q, want logged line", data)
	}
	if !strings.Contains(buf.String(), "synced 2 tables") {
		t.Errorf("stderr = %q, want the same line", buf.String())
	}
}

func TestSetup_Quiet(t *testing.T) {
	var buf bytes.Buffer
	l, err := Setup(Options{Quiet: true, Stderr: &buf})
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	l.Logger("repo").Println("dropped")

	if buf.Len() != 0 {
		t.Errorf("quiet logging wrote %q", buf.String())
	}
	if err := l.Rotate(); err != nil {
		t.Errorf("Rotate() without a file = %v, want nil", err)
	}
}

func TestRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lsync.log")

	l, err := Setup(Options{File: path, Quiet: true})
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	defer l.Close()

	l.Logger("x").Println("before")
	if err := l.Rotate(); err != nil {
		t.Fatalf("Rotate() failed: %v", err)
	}
	l.Logger("x").Println("after")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("files after rotate = %d, want 2", len(entries))
	}
}
