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
	"github.com/stretchr/testify/require"
)

func TestCheckExternalProjectUsageWarns(t *testing.T) {
	model := &MemModel{ModulesInUse: []string{"FetchContent", "include"}}
	var diags Diagnostics

	CheckExternalProjectUsage(model, &diags)

	require.Len(t, diags.Items(), 1)
	d := diags.Items()[0]
	assert.Equal(t, SeverityWarning, d.Severity)
	assert.Contains(t, d.Message, "FetchContent")
	assert.False(t, diags.HasFatal())
}

func TestCheckExternalProjectUsageQuietWhenClean(t *testing.T) {
	model := &MemModel{ModulesInUse: []string{"GNUInstallDirs"}}
	var diags Diagnostics

	CheckExternalProjectUsage(model, &diags)
	assert.Empty(t, diags.Items())
}
