package hda

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// PathSeparator separates branch names in a fully qualified item id.
const PathSeparator = "."

// NormalizeItemID trims surrounding whitespace and applies Unicode NFC so
// that visually identical ids compare equal.
func NormalizeItemID(id string) ItemID {
	return ItemID(norm.NFC.String(strings.TrimSpace(id)))
}

// NormalizePath normalizes a branch path the same way as item ids.
func NormalizePath(path string) string {
	return norm.NFC.String(strings.TrimSpace(path))
}

// JoinPath appends name to a branch path.
func JoinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + PathSeparator + name
}

// SplitPath returns the parent branch and the leaf name of a qualified id.
func SplitPath(id string) (parent, name string) {
	i := strings.LastIndex(id, PathSeparator)
	if i < 0 {
		return "", id
	}
	return id[:i], id[i+1:]
}
