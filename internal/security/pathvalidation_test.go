package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "plots"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(dir, "kappa.png"), false},
		{"new file in subdir", filepath.Join(dir, "plots", "new.png"), false},
		{"missing nested dirs", filepath.Join(dir, "a", "b", "c.png"), false},
		{"dir itself", dir, false},
		{"parent", filepath.Join(dir, ".."), true},
		{"traversal", filepath.Join(dir, "..", "etc", "passwd"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, dir)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathWithinDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathWithinDirectory_SymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(dir, "evil")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(link, "new.png"), dir); err == nil {
		t.Error("expected error for path through symlink leaving the directory")
	}
}

func TestJoinWithin(t *testing.T) {
	dir := t.TempDir()
	got, err := JoinWithin(dir, "../../Information content of outputs.png")
	if err != nil {
		t.Fatalf("JoinWithin: %v", err)
	}
	if want := filepath.Join(dir, "information_content_of_outputs.png"); got != want {
		t.Errorf("JoinWithin = %q, want %q", got, want)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Appropriateness", "appropriateness"},
		{"Information content of outputs", "information_content_of_outputs"},
		{"round1/group2", "round1_group2"},
		{"../../etc/passwd", "etc_passwd"},
		{"kappa-r1.png", "kappa-r1.png"},
		{"", "unknown"},
		{"///", "unknown"},
		{"Überprüfung", "berpr_fung"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := SanitizeFilename(strings.Repeat("a", 500)); len(got) != 128 {
		t.Errorf("len(SanitizeFilename(long)) = %d, want 128", len(got))
	}
}
