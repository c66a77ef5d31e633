package utils

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/routefs/routefs/pkg/errors"
)

func TestSecureJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		base        string
		elements    []string
		want        string
		errContains string
	}{
		{
			name:     "valid join",
			base:     "/srv/data",
			elements: []string{"reports", "q1.csv"},
			want:     "/srv/data/reports/q1.csv",
		},
		{
			name:        "traversal attempt in elements",
			base:        "/srv/data",
			elements:    []string{"reports", "..", "..", "..", "etc", "passwd"},
			errContains: "escapes base directory",
		},
		{
			name:        "empty base",
			base:        "",
			elements:    []string{"file.dat"},
			errContains: "base path cannot be empty",
		},
		{
			name:     "elements with current directory refs",
			base:     "/srv/data",
			elements: []string{".", "reports", ".", "q1.csv"},
			want:     "/srv/data/reports/q1.csv",
		},
		{
			name:     "no elements",
			base:     "/srv/data/",
			elements: nil,
			want:     "/srv/data",
		},
		{
			name:     "root base",
			base:     "/",
			elements: []string{"etc"},
			want:     "/etc",
		},
		{
			name:        "sibling with shared prefix",
			base:        "/srv/data",
			elements:    []string{"..", "data2", "x"},
			errContains: "escapes base directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if runtime.GOOS == "windows" {
				t.Skip("unix paths")
			}

			result, err := SecureJoin(tt.base, tt.elements...)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("SecureJoin() error = %v, should contain %q", err, tt.errContains)
				}
				if !errors.HasCode(err, errors.ErrCodePathInvalid) {
					t.Errorf("SecureJoin() code = %v, want PATH_INVALID", errors.CodeOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("SecureJoin() error = %v", err)
			}
			if result != tt.want {
				t.Errorf("SecureJoin() = %q, want %q", result, tt.want)
			}
		})
	}
}

func TestHostPath(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	tests := []struct {
		virtual string
		want    string
		wantErr bool
	}{
		{virtual: "/", want: base},
		{virtual: "", want: base},
		{virtual: "/docs/readme.md", want: filepath.Join(base, "docs", "readme.md")},
		{virtual: "docs//notes", want: filepath.Join(base, "docs", "notes")},
		{virtual: "/../etc/passwd", wantErr: true},
		{virtual: "/docs/../../etc", wantErr: true},
		{virtual: "/v1..2/file", want: filepath.Join(base, "v1..2", "file")},
	}

	for _, tt := range tests {
		t.Run(tt.virtual, func(t *testing.T) {
			got, err := HostPath(base, tt.virtual)
			if tt.wantErr {
				if !errors.HasCode(err, errors.ErrCodePathInvalid) {
					t.Errorf("HostPath(%q) error = %v, want PATH_INVALID", tt.virtual, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("HostPath(%q) error = %v", tt.virtual, err)
			}
			if got != tt.want {
				t.Errorf("HostPath(%q) = %q, want %q", tt.virtual, got, tt.want)
			}
		})
	}
}

func TestValidateAbsDir(t *testing.T) {
	t.Parallel()

	if err := ValidateAbsDir(t.TempDir()); err != nil {
		t.Errorf("ValidateAbsDir(tempdir) = %v", err)
	}
	for _, dir := range []string{"", "relative/dir", "./mnt"} {
		if err := ValidateAbsDir(dir); !errors.HasCode(err, errors.ErrCodePathInvalid) {
			t.Errorf("ValidateAbsDir(%q) = %v, want PATH_INVALID", dir, err)
		}
	}
}

func BenchmarkSecureJoin(b *testing.B) {
	base := "/srv/data"
	elements := []string{"reports", "2024", "q1.csv"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = SecureJoin(base, elements...)
	}
}
