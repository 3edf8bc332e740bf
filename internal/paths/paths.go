// Package paths provides canonical helpers for converting between:
// - project-relative container paths (e.g. "Assets/Units/Tank.asset")
// - logical catalog paths (e.g. "Units/Tank", "Units/Tank|Turret")
//
// Everything that builds or compares logical paths goes through here so the
// catalog, the source factories and the sync agent stay consistent.
package paths

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// NestedSeparator joins a container's logical path and a nested object name.
const NestedSeparator = "|"

// DefaultRoot is the project directory that holds content.
const DefaultRoot = "Assets"

// NormalizeDirRoot normalizes a directory root to have:
// - no leading slash
// - exactly one trailing slash (unless empty)
//
// Examples:
// - "/Assets/" -> "Assets/"
// - "Assets"   -> "Assets/"
// - ""         -> ""
func NormalizeDirRoot(root string) string {
	root = filepath.ToSlash(root)
	root = strings.Trim(root, "/")
	if root == "" {
		return ""
	}
	return root + "/"
}

// NormalizeRelPath normalizes a project-relative path:
// - converts OS separators to '/'
// - trims leading "./" and leading "/"
// - collapses repeated '/'
func NormalizeRelPath(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

// StripExt removes the final extension of the last path element.
func StripExt(p string) string {
	ext := path.Ext(p)
	if ext == "" || strings.HasSuffix(p, "/"+ext) || p == ext {
		return p
	}
	return strings.TrimSuffix(p, ext)
}

// ContainerLogicalPath converts a container path to its logical path.
//
// It:
// - normalizes separators
// - strips the first matching root prefix (e.g. "Assets/")
// - strips the extension
func ContainerLogicalPath(containerPath string, roots ...string) string {
	p := NormalizeRelPath(containerPath)
	if len(roots) == 0 {
		roots = []string{DefaultRoot}
	}
	for _, r := range roots {
		r = NormalizeDirRoot(r)
		if r != "" && strings.HasPrefix(p, r) {
			p = strings.TrimPrefix(p, r)
			break
		}
	}
	return StripExt(p)
}

// NestedLogicalPath returns the logical path of a non-primary object.
//
// The suffix is the object's name. When the name is empty, or shared with a
// sibling, "#<sub>" is appended so every object in a container gets a
// distinct path:
// - ("Units/Tank", "Turret", 4, false) -> "Units/Tank|Turret"
// - ("Units/Tank", "Turret", 4, true)  -> "Units/Tank|Turret#4"
// - ("Units/Tank", "", 4, false)       -> "Units/Tank|#4"
func NestedLogicalPath(base, name string, sub int64, ambiguous bool) string {
	name = strings.ReplaceAll(name, NestedSeparator, "_")
	if name == "" || ambiguous {
		return base + NestedSeparator + name + "#" + strconv.FormatInt(sub, 10)
	}
	return base + NestedSeparator + name
}

// SplitNested splits a logical path into container part and nested suffix.
func SplitNested(logical string) (base, nested string, ok bool) {
	i := strings.Index(logical, NestedSeparator)
	if i < 0 {
		return logical, "", false
	}
	return logical[:i], logical[i+1:], true
}

// UnderRoot reports whether containerPath lies inside root.
func UnderRoot(containerPath, root string) bool {
	r := NormalizeDirRoot(root)
	if r == "" {
		return true
	}
	return strings.HasPrefix(NormalizeRelPath(containerPath), r)
}

// AfterSegment returns the part of p after the last directory named seg.
//
// Examples:
// - ("Assets/Resources/Fx/Boom.asset", "Resources") -> "Fx/Boom.asset", true
// - ("Assets/Fx/Boom.asset", "Resources")           -> "", false
func AfterSegment(p, seg string) (string, bool) {
	parts := strings.Split(NormalizeRelPath(p), "/")
	for i := len(parts) - 2; i >= 0; i-- {
		if parts[i] == seg {
			return strings.Join(parts[i+1:], "/"), true
		}
	}
	return "", false
}
