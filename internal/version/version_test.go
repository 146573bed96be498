package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestString_IncludesVersion(t *testing.T) {
	if got := String(); !strings.HasPrefix(got, Version+" (commit: ") {
		t.Errorf("unexpected version string %q", got)
	}
}

func TestFromBuildSettings(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "abc123"},
		{Key: "vcs.time", Value: "2024-05-01T10:00:00Z"},
	}

	commit, built := fromBuildSettings(settings, "unknown", "unknown")
	if commit != "abc123" || built != "2024-05-01T10:00:00Z" {
		t.Errorf("got %s/%s, want VCS values", commit, built)
	}

	commit, built = fromBuildSettings(settings, "deadbeef", "yesterday")
	if commit != "deadbeef" || built != "yesterday" {
		t.Errorf("ldflags values must win, got %s/%s", commit, built)
	}
}
