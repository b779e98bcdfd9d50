package sitehttp

import (
	"io/fs"
	"path"
	"strings"

	"github.com/kestrelnet/zeronode/internal/pathutil"
)

// resolveInner maps the inner URL path of a content request to a file
// within the site root FS.
//
// Returns:
// - file: relative file path within the FS (no leading slash)
// - redirectTo: if non-empty, caller should redirect to this inner path
// - ok: whether the mapping is valid/found
func resolveInner(innerPath string, fsys fs.FS) (file string, redirectTo string, ok bool) {
	p := innerPath
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	// basic rejection of ambiguous/unsafe paths
	if strings.Contains(p, "\x00") || strings.Contains(p, "\\") || strings.Contains(p, "..") {
		return "", "", false
	}
	if pathutil.HasDotSegments(p) {
		return "", "", false
	}

	trailingSlash := strings.HasSuffix(p, "/")

	clean := path.Clean(p)
	if trailingSlash && clean != "/" {
		clean += "/"
	}

	// site root -> index.html
	if clean == "/" {
		name := "index.html"
		if existsFile(fsys, name) {
			return name, "", true
		}
		return "", "", false
	}

	// directory -> <dir>/index.html
	if strings.HasSuffix(clean, "/") {
		name := strings.TrimPrefix(clean, "/") + "index.html"
		if existsFile(fsys, name) {
			return name, "", true
		}
		return "", "", false
	}

	// if it has an extension treat as a file
	if path.Ext(clean) != "" {
		name := strings.TrimPrefix(clean, "/")
		if existsFile(fsys, name) {
			return name, "", true
		}
		return "", "", false
	}

	// pretty URL without slash: if <path>/index.html exists, redirect
	// to the canonical slash form
	dirIndex := strings.TrimPrefix(clean, "/") + "/index.html"
	if existsFile(fsys, dirIndex) {
		return "", clean + "/", true
	}

	return "", "", false
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
