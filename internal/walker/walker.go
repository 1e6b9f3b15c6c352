// Package walker turns a directory tree into scan units, with glob
// filtering, size and binary gates, and an optional content cache for
// incremental runs.
package walker

import (
	"context"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sensit/sensit/internal/scanner"
	"github.com/sensit/sensit/internal/types"
)

var defaultExcludeDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"target":       true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"out":          true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	"coverage":     true,
	"bin":          true,
	"obj":          true,
}

// suffixes treated as non-text or noisy artifacts when default excludes
// are enabled
var defaultExcludeSuffixes = []string{
	".min.js", ".map",
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg",
	".pdf", ".zip", ".gz", ".tar", ".tgz", ".7z",
	".jar", ".class", ".exe", ".dll", ".so",
	".wasm", ".pyc",
}

// Options selects which files under Root become units.
type Options struct {
	Root            string
	Include         string // comma-separated globs; empty means everything
	Exclude         string // comma-separated globs, subtracted last
	MaxBytes        int64
	DefaultExcludes bool
	Cache           *Cache // nil disables incremental skipping
}

// Source streams eligible files under opts.Root. Unreadable files become
// warnings, not errors; only a broken root aborts the walk.
func Source(opts Options) scanner.UnitSource {
	return func(ctx context.Context, emit func(scanner.Unit), warn func(types.Warning)) error {
		includes := splitGlobs(opts.Include)
		excludes := splitGlobs(opts.Exclude)
		return filepath.WalkDir(opts.Root, func(p string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return filepath.SkipAll
			}
			if err != nil {
				warn(types.Warning{Stage: "walk", Source: p, Msg: err.Error()})
				return nil
			}
			if d.IsDir() {
				if opts.DefaultExcludes && isDefaultDirExcluded(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			rel, _ := filepath.Rel(opts.Root, p)
			rel = filepath.ToSlash(rel)
			if filepath.Base(rel) == cacheName {
				return nil
			}
			if !allowedByGlobs(rel, includes, excludes) {
				return nil
			}
			if info, ierr := d.Info(); ierr == nil && opts.MaxBytes > 0 && info.Size() > opts.MaxBytes {
				return nil
			}
			if opts.DefaultExcludes && isDefaultFileExcluded(strings.ToLower(rel)) {
				return nil
			}
			b, rerr := os.ReadFile(p)
			if rerr != nil {
				warn(types.Warning{Stage: "walk", Source: rel, Msg: rerr.Error()})
				return nil
			}
			if looksBinary(b) || looksNonTextMIME(rel, b) {
				return nil
			}
			if opts.Cache != nil && !opts.Cache.Changed(rel, b) {
				return nil
			}
			emit(scanner.Unit{Source: rel, Text: string(b)})
			return nil
		})
	}
}

func isDefaultDirExcluded(name string) bool {
	return defaultExcludeDirs[name] || strings.HasPrefix(name, ".git")
}

func isDefaultFileExcluded(lowerRel string) bool {
	if strings.HasSuffix(lowerRel, ".lock") {
		return true
	}
	for _, s := range defaultExcludeSuffixes {
		if strings.HasSuffix(lowerRel, s) {
			return true
		}
	}
	return false
}

// allowedByGlobs applies include globs as a positive filter when present,
// then subtracts exclude globs. Matching uses forward-slash semantics,
// against both the relative path and its base name.
func allowedByGlobs(rel string, includes, excludes []string) bool {
	if len(includes) > 0 && !matchAnyGlob(rel, includes) {
		return false
	}
	if len(excludes) > 0 && matchAnyGlob(rel, excludes) {
		return false
	}
	return true
}

func matchAnyGlob(rel string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(g, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

func splitGlobs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func looksBinary(b []byte) bool {
	n := min(len(b), 800)
	for i := 0; i < n; i++ {
		if b[i] == 0 {
			return true
		}
	}
	return false
}

// looksNonTextMIME skips clearly non-text content by extension plus a
// tiny header sniff, on top of the NUL-byte check.
func looksNonTextMIME(path string, b []byte) bool {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		if strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "audio/") {
			return true
		}
		if strings.Contains(ct, "zip") || strings.Contains(ct, "tar") || strings.Contains(ct, "gzip") {
			return true
		}
	}
	if len(b) >= 8 && string(b[:8]) == "\x89PNG\r\n\x1a\n" {
		return true
	}
	if len(b) >= 2 && b[0] == 'P' && b[1] == 'K' {
		return true
	}
	return false
}
