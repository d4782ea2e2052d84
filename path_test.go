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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathClassifierIsSystem(t *testing.T) {
	c := NewPathClassifier("/proj", "/proj/build")
	assert.True(t, c.IsSystem("/usr/include/stdio.h"))
	assert.True(t, c.IsSystem("/usr/local/include/foo.h"))
	assert.True(t, c.IsSystem("/nix/store/abc123-glibc/include/stdlib.h"))
	assert.False(t, c.IsSystem("/proj/src/main.c"))
	assert.False(t, c.IsSystem("/usrlocal/foo.h"), "prefix must match a full path component")
}

func TestPathClassifierIsOutsideTree(t *testing.T) {
	c := NewPathClassifier("/proj", "/proj/build")
	assert.True(t, c.IsOutsideTree(""))
	assert.True(t, c.IsOutsideTree(".."))
	assert.True(t, c.IsOutsideTree("../sibling/a.h"))
	assert.False(t, c.IsOutsideTree("."))
	assert.False(t, c.IsOutsideTree("src/a.h"))
}

func TestPathClassifierNormalizeProjectLocal(t *testing.T) {
	c := NewPathClassifier("/proj", "/proj/build")
	assert.Equal(t, "./src/main.c", c.Normalize("/proj/src/main.c"))
	assert.Equal(t, "./.", c.Normalize("/proj"))
}

func TestPathClassifierNormalizeEscapesProjectRoot(t *testing.T) {
	c := NewPathClassifier("/proj", "/proj/build")
	// Escaping paths are handed back untouched (no "./../../" heuristic).
	assert.Equal(t, "/outside/shared.h", c.Normalize("/outside/shared.h"))
}

// A symlink inside the project tree pointing outside both roots must be
// flagged, but never rejected fatally.
func TestValidateSecuritySymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	projectRoot := filepath.Join(dir, "proj")
	outside := filepath.Join(dir, "outside")
	require.NoError(t, os.MkdirAll(projectRoot, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))

	target := filepath.Join(outside, "shared.h")
	require.NoError(t, os.WriteFile(target, []byte("// header"), 0o644))

	link := filepath.Join(projectRoot, "shared.h")
	require.NoError(t, os.Symlink(target, link))

	c := NewPathClassifier(projectRoot, filepath.Join(projectRoot, "build"))
	ok, warning := c.ValidateSecurity(link)
	assert.True(t, ok, "security validation never fails fatally")
	assert.NotEmpty(t, warning)
}

func TestValidateSecurityProjectLocalIsClean(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.c"), []byte("int main(){}"), 0o644))

	c := NewPathClassifier(dir, filepath.Join(dir, "build"))
	ok, warning := c.ValidateSecurity(filepath.Join(dir, "main.c"))
	assert.True(t, ok)
	assert.Empty(t, warning)
}

func TestValidateSecurityMissingGeneratedSourceIsClean(t *testing.T) {
	dir := t.TempDir()
	c := NewPathClassifier(dir, filepath.Join(dir, "build"))
	ok, warning := c.ValidateSecurity(filepath.Join(dir, "generated_not_on_disk.c"))
	assert.True(t, ok)
	assert.Empty(t, warning)
}
