package namespace

import (
	"errors"
	"strings"
)

// ErrInvalidPath is returned for any path shape that is neither the root,
// a depth-1 directory, nor a depth-2 file (original_source/src/util.c's
// dcfs_path_init rejects the same shapes with -ENOTSUP/-ENOENT).
var ErrInvalidPath = errors.New("namespace: invalid path")

// ParsePath splits a kernel-supplied absolute path into its directory and
// file components. The root path yields ("", ""); a depth-1 path yields
// (dir, ""); a depth-2 path yields (dir, file). Any other shape - empty
// components, embedded slashes beyond depth 2, a path not rooted at "/" -
// is rejected with ErrInvalidPath.
func ParsePath(path string) (dir, file string, err error) {
	if path == "" || path[0] != '/' {
		return "", "", ErrInvalidPath
	}
	if path == "/" {
		return "", "", nil
	}
	parts := strings.Split(path[1:], "/")
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return "", "", ErrInvalidPath
		}
		return parts[0], "", nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return "", "", ErrInvalidPath
		}
		return parts[0], parts[1], nil
	default:
		return "", "", ErrInvalidPath
	}
}
