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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigFlags(t *testing.T) {
	assert.Equal(t, []string{"-O3", "-DNDEBUG"}, ConfigFlags("Release"))
	assert.Equal(t, []string{"-g", "-O0"}, ConfigFlags("Debug"))
	assert.Equal(t, []string{"-O2", "-g", "-DNDEBUG"}, ConfigFlags("RelWithDebInfo"))
	assert.Equal(t, []string{"-Os", "-DNDEBUG"}, ConfigFlags("MinSizeRel"))
	assert.Nil(t, ConfigFlags("Bogus"), "unknown configurations contribute no flags")
	assert.Equal(t, []string{"-O3", "-DNDEBUG"}, ConfigFlags(""), "empty defaults to Release")
}

func TestEffectiveConfig(t *testing.T) {
	assert.Equal(t, "Release", EffectiveConfig(""))
	assert.Equal(t, "Debug", EffectiveConfig("Debug"))
}
