package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	safe := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"inside", filepath.Join(safe, "report.html"), false},
		{"nested inside", filepath.Join(safe, "out", "report.html"), false},
		{"dot-dot escape", filepath.Join(safe, "..", "report.html"), true},
		{"sibling directory", filepath.Join(filepath.Dir(safe), "other", "report.html"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, safe)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePathWithinDirectory(%q) = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathRejectsSymlinkEscape(t *testing.T) {
	safe := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(safe, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if err := ValidatePathWithinDirectory(filepath.Join(link, "report.html"), safe); err == nil {
		t.Fatal("symlinked escape accepted")
	}
}

func TestValidatePathWithinAllowedDirs(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()

	if err := ValidatePathWithinAllowedDirs(filepath.Join(b, "f"), []string{a, b}); err != nil {
		t.Fatalf("path in second dir rejected: %v", err)
	}
	if err := ValidatePathWithinAllowedDirs("/somewhere/else/f", []string{a, b}); err == nil {
		t.Fatal("path outside both dirs accepted")
	}
	if err := ValidatePathWithinAllowedDirs(filepath.Join(a, "f"), nil); err == nil {
		t.Fatal("empty allow-list accepted")
	}
}

func TestValidateExportPath(t *testing.T) {
	if err := ValidateExportPath(filepath.Join(os.TempDir(), "report.html")); err != nil {
		t.Fatalf("temp dir output rejected: %v", err)
	}
	if err := ValidateExportPath("report.html"); err != nil {
		t.Fatalf("cwd output rejected: %v", err)
	}
	if err := ValidateExportPath("/etc/report.html"); err == nil {
		t.Fatal("absolute path outside cwd and temp accepted")
	}
}
