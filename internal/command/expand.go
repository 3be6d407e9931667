package command

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mitchellh/go-homedir"
)

// HasGlobMeta reports whether tok contains `* ? [ ] ~`.
func HasGlobMeta(tok string) bool {
	return strings.ContainsAny(tok, "*?[]~")
}

// ExpandToken expands a glob token against dir. Each match becomes a
// separate entry in directory order. When nothing matches, or the pattern
// is malformed, the literal token is returned.
func ExpandToken(tok, dir string) []string {
	pattern := expandTilde(tok)
	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}
	}
	if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
		return []string{tok}
	}
	if filepath.IsAbs(pattern) {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil || len(matches) == 0 {
			return []string{tok}
		}
		return matches
	}
	if dir == "" {
		dir = "."
	}
	// Leading literal segments (including "." and "..") are resolved as
	// paths; only the rest is matched, inside dir, so metacharacters in
	// dir itself never take part in the match.
	segments := strings.Split(filepath.ToSlash(pattern), "/")
	base := 0
	for base < len(segments)-1 && !strings.ContainsAny(segments[base], "*?[") {
		base++
	}
	prefix := strings.Join(segments[:base], "/")
	matches, err := doublestar.Glob(os.DirFS(filepath.Join(dir, filepath.FromSlash(prefix))), strings.Join(segments[base:], "/"))
	if err != nil || len(matches) == 0 {
		return []string{tok}
	}
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		if prefix != "" {
			match = prefix + "/" + match
		}
		out = append(out, filepath.FromSlash(match))
	}
	return out
}

// expandTilde resolves a leading `~` or `~/`. Other forms are left alone.
func expandTilde(tok string) string {
	if tok != "~" && !strings.HasPrefix(tok, "~/") {
		return tok
	}
	expanded, err := homedir.Expand(tok)
	if err != nil {
		return tok
	}
	return expanded
}
