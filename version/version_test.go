package version

import (
	"runtime/debug"
	"testing"
)

func stub(t *testing.T, version, commit string, bi *debug.BuildInfo) {
	t.Helper()
	origVersion, origCommit, origRead := Version, GitCommit, readBuildInfo
	t.Cleanup(func() {
		Version, GitCommit, readBuildInfo = origVersion, origCommit, origRead
	})
	Version, GitCommit = version, commit
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
}

func TestGet(t *testing.T) {
	vcs := &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	tests := []struct {
		name      string
		version   string
		commit    string
		bi        *debug.BuildInfo
		wantShort string
		release   bool
	}{
		{"no build info", "dev", "", nil, "dev", false},
		{"stamped", "1.2.0", "abc1234", &debug.BuildInfo{GoVersion: "go1.26.0"}, "1.2.0-abc1234", true},
		{"from vcs", "1.2.0", "", vcs, "1.2.0-0123456-dirty", false},
		{"stamped commit wins", "1.2.0", "feed", vcs, "1.2.0-feed-dirty", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub(t, tc.version, tc.commit, tc.bi)
			info := Get()
			if got := info.Short(); got != tc.wantShort {
				t.Errorf("Short() = %q, want %q", got, tc.wantShort)
			}
			if info.Release() != tc.release {
				t.Errorf("Release() = %v, want %v", info.Release(), tc.release)
			}
		})
	}
}

func TestGetReadsVCSTime(t *testing.T) {
	stub(t, "dev", "", &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Settings:  []debug.BuildSetting{{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"}},
	})
	info := Get()
	if info.BuildTime != "2026-01-02T03:04:05Z" || info.GoVersion != "go1.26.0" {
		t.Errorf("unexpected info %+v", info)
	}
}
