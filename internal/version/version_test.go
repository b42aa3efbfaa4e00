package version

import "testing"

func TestString(t *testing.T) {
	oldV, oldSHA, oldBuild := Version, GitSHA, BuildTime
	defer func() { Version, GitSHA, BuildTime = oldV, oldSHA, oldBuild }()

	Version, GitSHA, BuildTime = "1.2.0", "abc123", "2024-05-01T00:00:00Z"
	if got, want := String(), "1.2.0 (abc123, built 2024-05-01T00:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
