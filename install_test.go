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

func TestSynthesizeInstallSkipsTargetsWithoutGenerators(t *testing.T) {
	target := &MemTarget{TargetName: "app", TargetKind: Executable}
	ld := &LinkDerivation{DerivationName: "link_app", TargetName: "app", Kind: Executable}

	_, ok := SynthesizeInstall(target, ld)
	assert.False(t, ok)
}

func TestSynthesizeInstallDefaultDestinations(t *testing.T) {
	cases := []struct {
		kind TargetKind
		want string
	}{
		{Executable, "bin"},
		{StaticLibrary, "lib"},
		{SharedLibrary, "lib"},
	}
	for _, c := range cases {
		target := &MemTarget{
			TargetName: "t",
			TargetKind: c.kind,
			Installs:   []InstallGen{{}},
		}
		ld := &LinkDerivation{DerivationName: "link_t", TargetName: "t", Kind: c.kind}
		id, ok := SynthesizeInstall(target, ld)
		require.True(t, ok)
		assert.Equal(t, c.want, id.Destination)
		assert.Equal(t, "link_t_install", id.DerivationName)
	}
}

func TestSynthesizeInstallExplicitDestinationWins(t *testing.T) {
	target := &MemTarget{
		TargetName: "app",
		TargetKind: Executable,
		Installs:   []InstallGen{{Destination: "libexec/app"}},
	}
	ld := &LinkDerivation{DerivationName: "link_app", TargetName: "app", Kind: Executable}

	id, ok := SynthesizeInstall(target, ld)
	require.True(t, ok)
	assert.Equal(t, "libexec/app", id.Destination)
}

func TestInstallDerivationEmit(t *testing.T) {
	id := &InstallDerivation{
		DerivationName: "link_app_install",
		TargetName:     "app",
		LinkName:       "link_app",
		Destination:    "bin",
	}
	w := NewWriter()
	id.Emit(w)
	out := w.String()

	assert.Contains(t, out, "link_app_install = stdenv.mkDerivation {")
	assert.Contains(t, out, "src = ${link_app};")
	assert.Contains(t, out, "mkdir -p $out/'bin'")
	assert.Contains(t, out, "cp -r $src/. $out/'bin'/")
}
