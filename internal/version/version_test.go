package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func setVersion(t *testing.T, v, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = v, commit, date
	t.Cleanup(func() {
		Version, Commit, Date = origVersion, origCommit, origDate
	})
}

func TestGetInfo(t *testing.T) {
	setVersion(t, "1.0.0", "abc123def456", "2024-01-01T12:00:00Z")

	info := GetInfo()

	if info.Version != "1.0.0" {
		t.Errorf("Version = %q, want 1.0.0", info.Version)
	}
	if info.Commit != "abc123def456" {
		t.Errorf("Commit = %q, want abc123def456", info.Commit)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
}

func TestFillFromBuildInfo(t *testing.T) {
	tests := []struct {
		name        string
		info        Info
		bi          debug.BuildInfo
		wantVersion string
		wantCommit  string
	}{
		{
			name: "ldflags win",
			info: Info{Version: "1.2.0", Commit: "abc", Date: "today"},
			bi: debug.BuildInfo{
				Main:     debug.Module{Version: "v9.9.9"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "zzz"}},
			},
			wantVersion: "1.2.0",
			wantCommit:  "abc",
		},
		{
			name: "go install",
			info: Info{Version: "dev", Commit: "unknown", Date: "unknown"},
			bi: debug.BuildInfo{
				Main:     debug.Module{Version: "v0.4.0"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "deadbeef"}},
			},
			wantVersion: "v0.4.0",
			wantCommit:  "deadbeef",
		},
		{
			name:        "devel build",
			info:        Info{Version: "dev", Commit: "unknown"},
			bi:          debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			wantVersion: "dev",
			wantCommit:  "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.info
			fillFromBuildInfo(&info, &tt.bi)
			if info.Version != tt.wantVersion {
				t.Errorf("Version = %q, want %q", info.Version, tt.wantVersion)
			}
			if info.Commit != tt.wantCommit {
				t.Errorf("Commit = %q, want %q", info.Commit, tt.wantCommit)
			}
		})
	}
}

func TestInfoString(t *testing.T) {
	info := Info{
		Version:   "1.0.0",
		Commit:    "abc123def456789",
		Date:      "2024-01-01",
		GoVersion: "go1.24.6",
		Platform:  "linux/amd64",
	}

	got := info.String()
	want := "servicehub 1.0.0 (abc123de) built 2024-01-01 with go1.24.6 for linux/amd64"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	info.Commit = "abc"
	if !strings.Contains(info.String(), "(abc)") {
		t.Errorf("short commits must not be truncated: %q", info.String())
	}
}

func TestShort(t *testing.T) {
	if got := (Info{Version: "2.1.0"}).Short(); got != "2.1.0" {
		t.Errorf("Short() = %q, want 2.1.0", got)
	}
}

func TestUserAgent(t *testing.T) {
	setVersion(t, "3.0.0", "unknown", "unknown")

	ua := UserAgent()
	if !strings.HasPrefix(ua, "servicehub/") {
		t.Errorf("UserAgent() = %q, want servicehub/ prefix", ua)
	}
	if !strings.Contains(ua, runtime.GOOS) {
		t.Errorf("UserAgent() = %q should name the OS", ua)
	}
}
