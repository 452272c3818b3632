package crsqlite

import (
	"runtime"
	"strings"
	"testing"
)

func TestExtensionPathKnownOS(t *testing.T) {
	switch runtime.GOOS {
	case "darwin", "windows", "linux":
	default:
		t.Skipf("host os %q is not one of darwin/windows/linux; skipping", runtime.GOOS)
	}

	path, err := ExtensionPath()
	if err != nil {
		t.Fatalf("ExtensionPath() error = %v", err)
	}
	if !strings.Contains(path, runtime.GOOS) {
		t.Errorf("ExtensionPath() = %q, want it to mention GOOS %q", path, runtime.GOOS)
	}
	if !strings.Contains(path, runtime.GOARCH) {
		t.Errorf("ExtensionPath() = %q, want it to mention GOARCH %q", path, runtime.GOARCH)
	}
}
