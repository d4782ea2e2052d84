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
)

// readFile and evalSymlinks are var-indirected so tests can substitute an
// in-memory filesystem without touching disk; fileExists always stats the
// real filesystem.
var (
	readFile     = os.ReadFile
	evalSymlinks = filepath.EvalSymlinks
)

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
