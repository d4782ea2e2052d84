// Copyright 2024 The nixgen authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nixgen

import (
	"path/filepath"
	"strings"
)

// DefaultSystemPrefixes is the built-in list of filesystem prefixes the Nix
// toolchain provides automatically; user-configurable via
// PathClassifier.SystemPrefixes.
var DefaultSystemPrefixes = []string{
	"/usr",
	"/usr/local",
	"/opt",
	"/nix/store",
	"/System/Library",
	"/Library/Developer",
	"/usr/share/cmake", // CMake's own module root
}

// PathClassifier provides path normalization and classification.
type PathClassifier struct {
	ProjectRoot    string
	BuildRoot      string
	SystemPrefixes []string
}

func NewPathClassifier(projectRoot, buildRoot string) *PathClassifier {
	return &PathClassifier{
		ProjectRoot:    projectRoot,
		BuildRoot:      buildRoot,
		SystemPrefixes: DefaultSystemPrefixes,
	}
}

// Normalize resolves ".." components and returns the token the Nix emitter
// should write for path: a "./"-prefixed relative token when path is inside
// ProjectRoot, otherwise an absolute token meant to be wrapped by the
// caller in the Nix builtin that imports absolute paths.
func (c *PathClassifier) Normalize(path string) string {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) {
		if c.ProjectRoot != "" {
			clean = filepath.Clean(filepath.Join(c.ProjectRoot, clean))
		} else {
			return "./" + clean
		}
	}
	rel, err := filepath.Rel(c.ProjectRoot, clean)
	if err == nil && !c.IsOutsideTree(rel) {
		if rel == "." {
			return "./."
		}
		return "./" + rel
	}
	// Escapes the project root: we deliberately do not guess a "./../../" depth prefix here, we hand
	// back the absolute path untouched for the caller to wrap.
	return clean
}

// IsSystem reports whether path begins with any configured system prefix.
func (c *PathClassifier) IsSystem(path string) bool {
	for _, p := range c.SystemPrefixes {
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// IsOutsideTree reports whether a relative path escapes its root: empty, or
// starts with "../".
func (c *PathClassifier) IsOutsideTree(relPath string) bool {
	return relPath == "" || relPath == ".." || strings.HasPrefix(relPath, "../") || strings.HasPrefix(relPath, "..\\")
}

// IsProjectLocal reports whether path resolves inside ProjectRoot.
func (c *PathClassifier) IsProjectLocal(path string) bool {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(c.ProjectRoot, abs)
	}
	rel, err := filepath.Rel(c.ProjectRoot, filepath.Clean(abs))
	return err == nil && !c.IsOutsideTree(rel)
}

// IsBuildLocal reports whether path resolves inside BuildRoot.
func (c *PathClassifier) IsBuildLocal(path string) bool {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(c.BuildRoot, abs)
	}
	rel, err := filepath.Rel(c.BuildRoot, filepath.Clean(abs))
	return err == nil && !c.IsOutsideTree(rel)
}

// ValidateSecurity resolves symlinks and warns (never fails fatally, to
// accommodate compiler-ABI probe files living outside both roots) when the
// resolved path escapes both ProjectRoot and BuildRoot and is not a system
// path.
func (c *PathClassifier) ValidateSecurity(path string) (ok bool, warning string) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		// Generated sources are permitted to be missing on disk;
		// treat an unresolved path as fine if it's nominally project/build
		// local per its literal (unresolved) form.
		resolved = path
	}
	if c.IsSystem(resolved) {
		return true, ""
	}
	if c.IsProjectLocal(resolved) || c.IsBuildLocal(resolved) {
		return true, ""
	}
	return true, "path " + path + " resolves outside both the project root and the build root (" + resolved + ")"
}
