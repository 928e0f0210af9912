package data

import (
	"fmt"
	"strings"
)

// Namespace translates the URIs of one mount into store keys and back.
// The mount root is the key prefix, or the bucket root without one.
type Namespace struct {
	Scheme string
	Prefix string
}

// NewNamespace returns a namespace with a cleaned prefix.
func NewNamespace(scheme, prefix string) Namespace {
	return Namespace{
		Scheme: scheme,
		Prefix: strings.Trim(prefix, "/"),
	}
}

// Path normalizes uri into a store key.
// The scheme must match, surrounding slashes are trimmed and the prefix
// is prepended unless the path already lies inside it.
func (n Namespace) Path(uri string) (string, error) {
	path := uri
	if scheme, rest, found := strings.Cut(uri, "://"); found {
		if scheme != n.Scheme {
			return "", fmt.Errorf("%w: scheme %q is not %q", ErrInvalidPath, scheme, n.Scheme)
		}
		path = rest
	}

	path = strings.Trim(path, "/")
	if strings.Contains(path, "//") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, uri)
	}

	if n.Prefix == "" || HasPrefix(path, n.Prefix) {
		return path, nil
	}
	if path == "" {
		return n.Prefix, nil
	}

	return n.Prefix + "/" + path, nil
}

// URI returns the URI addressing the given store key.
func (n Namespace) URI(path string) string {
	return n.Scheme + "://" + path
}

// Root returns the URI of the mount root.
func (n Namespace) Root() string {
	return n.URI(n.Prefix)
}

// IsRoot reports whether path is the mount root.
func (n Namespace) IsRoot(path string) bool {
	return path == n.Prefix
}

// Contains reports whether path lies strictly below the mount root.
func (n Namespace) Contains(path string) bool {
	if n.Prefix == "" {
		return path != ""
	}
	return strings.HasPrefix(path, n.Prefix+"/")
}

// Ancestors returns the parent directories of path, nearest first,
// stopping before the mount root.
func (n Namespace) Ancestors(path string) []string {
	var parents []string
	for dir := Dirname(path); dir != "" && n.Contains(dir); dir = Dirname(dir) {
		parents = append(parents, dir)
	}
	return parents
}

// Relative returns path relative to the mount root.
func (n Namespace) Relative(path string) string {
	return ToRelativePath(path, n.Prefix)
}

// Dirname returns everything before the last slash of path, or "" for top-level keys.
func Dirname(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[:idx]
	}
	return ""
}

// Basename returns everything after the last slash of path.
func Basename(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// ToRelativePath removes the prefix from path.
// It additionally removes any leading slashes.
func ToRelativePath(path, prefix string) string {
	if prefix == "" {
		return path
	}

	if path == prefix {
		return ""
	}

	relPath := strings.TrimPrefix(path, prefix)
	return strings.TrimPrefix(relPath, "/")
}

// HasPrefix checks if path equals prefix or lies below it.
// Both paths should be cleaned before calling.
func HasPrefix(path, prefix string) bool {
	// Root matches everything
	if prefix == "" {
		return true
	}

	// Exact match
	if path == prefix {
		return true
	}

	return strings.HasPrefix(path, prefix+"/")
}
