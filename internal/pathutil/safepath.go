package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// SafeInnerPath reports whether p is acceptable as a path inside a site
// root: relative, slash-separated, no NULs, no backslashes, no dot
// segments. The empty string is allowed and refers to the root manifest.
func SafeInnerPath(p string) bool {
	if p == "" {
		return true
	}
	if strings.HasPrefix(p, "/") {
		return false
	}
	if strings.ContainsAny(p, "\x00\\") {
		return false
	}
	return !HasDotSegments(p)
}
