package utils

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/routefs/routefs/pkg/errors"
)

// SecureJoin joins elements onto base and fails if the result leaves base.
//
//	host, err := SecureJoin("/srv/data", "reports", name)
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", pathError("base path cannot be empty", base)
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if !within(cleanBase, fullPath) {
		return "", pathError("path escapes base directory", fullPath).
			WithContext("base", cleanBase)
	}
	return fullPath, nil
}

// HostPath maps a slash-separated virtual path onto a host path below base
func HostPath(base, virtual string) (string, error) {
	if hasDotDot(virtual) {
		return "", pathError("path contains directory traversal", virtual)
	}
	rel := strings.TrimPrefix(path.Clean("/"+virtual), "/")
	return SecureJoin(base, filepath.FromSlash(rel))
}

// ValidateAbsDir checks that dir is a non-empty absolute path
func ValidateAbsDir(dir string) error {
	if dir == "" {
		return pathError("path cannot be empty", dir)
	}
	if !filepath.IsAbs(dir) {
		return pathError("path must be absolute", dir)
	}
	return nil
}

func within(base, target string) bool {
	if target == base {
		return true
	}
	if strings.HasSuffix(base, string(filepath.Separator)) {
		return strings.HasPrefix(target, base)
	}
	return strings.HasPrefix(target, base+string(filepath.Separator))
}

func hasDotDot(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func pathError(message, p string) *errors.RouteFSError {
	return errors.NewError(errors.ErrCodePathInvalid, message).
		WithComponent("utils").
		WithContext("path", p)
}
