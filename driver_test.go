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
	"regexp"
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func helloModel() *MemModel {
	return &MemModel{
		Project: ".",
		Build:   "./build",
		TargetList: []*MemTarget{
			{
				TargetName: "hello",
				TargetKind: Executable,
				SourceList: []SourceFile{{Path: "main.c", Language: LangC}},
			},
		},
	}
}

// TestGenerateSingleSourceExecutable covers the smallest useful input: one
// executable built from one C file.
func TestGenerateSingleSourceExecutable(t *testing.T) {
	d := NewDriver(helloModel(), DriverConfig{})
	out, err := d.Generate()
	require.NoError(t, err)

	assert.Contains(t, out, "# Generated")
	assert.Contains(t, out, "with import <nixpkgs> {};")
	assert.Contains(t, out, "cmakeNixCC = {")
	assert.Contains(t, out, "cmakeNixLD = {")
	assert.Contains(t, out, "hello_main_c_o = cmakeNixCC {")
	assert.Contains(t, out, `name = "main.o";`)
	assert.Contains(t, out, `source = "main.c";`)
	assert.Contains(t, out, "link_hello = cmakeNixLD {")
	assert.Contains(t, out, `type = "executable";`)
	assert.Contains(t, out, "objects = [ hello_main_c_o ];")
	assert.Contains(t, out, `"hello" = link_hello;`)
}

// TestGenerateStaticChainOrder checks static-library link ordering (each
// library before the libraries it depends on) through a three-deep chain,
// end to end through the driver.
func TestGenerateStaticChainOrder(t *testing.T) {
	model := &MemModel{
		Project: ".",
		Build:   "./build",
		TargetList: []*MemTarget{
			{
				TargetName: "app",
				TargetKind: Executable,
				SourceList: []SourceFile{{Path: "main.c", Language: LangC}},
				LinkItems:  []LinkItem{{Kind: LinkInternalTarget, Name: "a"}},
			},
			{
				TargetName: "a",
				TargetKind: StaticLibrary,
				SourceList: []SourceFile{{Path: "a.c", Language: LangC}},
				LinkItems:  []LinkItem{{Kind: LinkInternalTarget, Name: "b"}},
			},
			{
				TargetName: "b",
				TargetKind: StaticLibrary,
				SourceList: []SourceFile{{Path: "b.c", Language: LangC}},
				LinkItems:  []LinkItem{{Kind: LinkInternalTarget, Name: "c"}},
			},
			{
				TargetName: "c",
				TargetKind: StaticLibrary,
				SourceList: []SourceFile{{Path: "c.c", Language: LangC}},
			},
		},
	}

	d := NewDriver(model, DriverConfig{})
	out, err := d.Generate()
	require.NoError(t, err)
	assert.Contains(t, out, `libraries = [ "${link_a}" "${link_b}" "${link_c}" ];`)
}

// TestGenerateCustomCommandCycle checks that a command consuming its own
// primary output aborts generation.
func TestGenerateCustomCommandCycle(t *testing.T) {
	model := helloModel()
	model.TargetList[0].PreBuild = []CustomCommand{
		{Outputs: []string{"out1", "out2"}, Inputs: []string{"in1", "out2"}, CommandLines: [][]string{{"gen1"}}},
		{Outputs: []string{"out3"}, Inputs: []string{"out1", "out3"}, CommandLines: [][]string{{"gen2"}}},
	}

	d := NewDriver(model, DriverConfig{})
	_, err := d.Generate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out3 -> out3")
}

func TestGenerateTargetCycleIsFatal(t *testing.T) {
	model := &MemModel{
		Project: ".",
		Build:   "./build",
		TargetList: []*MemTarget{
			{
				TargetName: "x",
				TargetKind: StaticLibrary,
				LinkItems:  []LinkItem{{Kind: LinkInternalTarget, Name: "y"}},
			},
			{
				TargetName: "y",
				TargetKind: StaticLibrary,
				LinkItems:  []LinkItem{{Kind: LinkInternalTarget, Name: "x"}},
			},
		},
	}

	d := NewDriver(model, DriverConfig{})
	_, err := d.Generate()
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, "target", cycleErr.Kind)
}

func TestGenerateCustomCommandEmission(t *testing.T) {
	model := helloModel()
	model.TargetList[0].PreBuild = []CustomCommand{
		{
			Outputs:      []string{"gen/version.h"},
			WorkingDir:   "gen",
			CommandLines: [][]string{{"/usr/bin/cmake", "-E", "touch", "version.h"}},
		},
	}

	d := NewDriver(model, DriverConfig{})
	out, err := d.Generate()
	require.NoError(t, err)

	assert.Contains(t, out, "custom_gen_version_h = stdenv.mkDerivation {")
	assert.Contains(t, out, "cd 'gen'")
	assert.Contains(t, out, "cmake -E touch version.h", "absolute cmake invocations are unadorned")
	assert.Contains(t, out, "cp 'gen/version.h' $out/gen/version.h")
	assert.Contains(t, out, "buildInputs = [ cmake gcc ];")
}

// TestGeneratePrecompiledHeaders checks both sides of PCH handling: the
// creating source becomes a PCH derivation (never a regular object), and
// consuming sources reference it as a build input.
func TestGeneratePrecompiledHeaders(t *testing.T) {
	model := &MemModel{
		Project: ".",
		Build:   "./build",
		TargetList: []*MemTarget{
			{
				TargetName: "app",
				TargetKind: Executable,
				SourceList: []SourceFile{
					{Path: "cmake_pch.c", Language: LangC},
					{Path: "main.c", Language: LangC},
				},
				Properties: map[string]string{"PRECOMPILE_HEADERS": "pch.h"},
				PCHSources: map[string]string{"C": "cmake_pch.c"},
				PCHHeaders: map[string]string{"C": "pch.h"},
				PCHFiles:   map[string]string{"C": "pch.h.gch"},
			},
		},
	}

	d := NewDriver(model, DriverConfig{})
	out, err := d.Generate()
	require.NoError(t, err)

	assert.Contains(t, out, "app_pch_C = cmakeNixCC {")
	assert.Contains(t, out, "-x c-header")
	assert.NotContains(t, out, "app_cmake_pch_c_o", "the PCH source is compiled by its PCH derivation, not a regular object")
	assert.Contains(t, out, "app_main_c_o = cmakeNixCC {")
	assert.Contains(t, out, "buildInputs = [ app_pch_C gcc ];", "consumers reference the PCH derivation")
	assert.Contains(t, out, "-include pch.h")
	assert.Contains(t, out, "objects = [ app_main_c_o ];", "only regular objects reach the link step")
}

// The top-level attribute set keeps the front-end's target order; nothing
// re-sorts it.
func TestGenerateTopLevelOrderFollowsFrontEnd(t *testing.T) {
	model := &MemModel{
		Project: ".",
		Build:   "./build",
		TargetList: []*MemTarget{
			{
				TargetName: "zeta",
				TargetKind: Executable,
				SourceList: []SourceFile{{Path: "z.c", Language: LangC}},
			},
			{
				TargetName: "alpha",
				TargetKind: Executable,
				SourceList: []SourceFile{{Path: "a.c", Language: LangC}},
			},
		},
	}

	d := NewDriver(model, DriverConfig{})
	out, err := d.Generate()
	require.NoError(t, err)

	zeta := strings.Index(out, `"zeta" = link_zeta;`)
	alpha := strings.Index(out, `"alpha" = link_alpha;`)
	require.GreaterOrEqual(t, zeta, 0)
	require.GreaterOrEqual(t, alpha, 0)
	assert.Less(t, zeta, alpha)
}

func TestGenerateInstallRules(t *testing.T) {
	model := helloModel()
	model.TargetList[0].Installs = []InstallGen{{}}

	d := NewDriver(model, DriverConfig{})
	out, err := d.Generate()
	require.NoError(t, err)

	assert.Contains(t, out, "link_hello_install = stdenv.mkDerivation {")
	assert.Contains(t, out, `"hello_install" = link_hello_install;`)
}

// TestGenerateDeterministic checks that identical inputs
// produce byte-identical output. The diff library renders any divergence
// readably.
func TestGenerateDeterministic(t *testing.T) {
	first, err := NewDriver(helloModel(), DriverConfig{}).Generate()
	require.NoError(t, err)
	second, err := NewDriver(helloModel(), DriverConfig{}).Generate()
	require.NoError(t, err)

	if first != second {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(first, second, false)
		t.Fatalf("generation is not deterministic:\n%s", dmp.DiffPrettyText(diffs))
	}
}

// TestGenerateReferenceClosure checks that every
// generated-derivation reference is defined in the same let block.
var derivRefRE = regexp.MustCompile(`\$\{((?:link_|custom_|headers_|src_)[A-Za-z0-9_-]+)\}`)

func TestGenerateReferenceClosure(t *testing.T) {
	model := &MemModel{
		Project: ".",
		Build:   "./build",
		TargetList: []*MemTarget{
			{
				TargetName: "app",
				TargetKind: Executable,
				SourceList: []SourceFile{{Path: "main.c", Language: LangC}},
				LinkItems: []LinkItem{
					{Kind: LinkInternalTarget, Name: "core"},
					{Kind: LinkInternalTarget, Name: "util"},
				},
				Installs: []InstallGen{{}},
			},
			{
				TargetName: "core",
				TargetKind: SharedLibrary,
				SourceList: []SourceFile{{Path: "core.c", Language: LangC}},
			},
			{
				TargetName: "util",
				TargetKind: StaticLibrary,
				SourceList: []SourceFile{{Path: "util.c", Language: LangC}},
			},
		},
	}

	d := NewDriver(model, DriverConfig{})
	out, err := d.Generate()
	require.NoError(t, err)

	for _, m := range derivRefRE.FindAllStringSubmatch(out, -1) {
		name := m[1]
		assert.Contains(t, out, "\n"+name+" = ", "referenced derivation %s must be defined", name)
	}
}

// TestGenerateIdentifierValidity checks Nix identifier validity over every
// let-bound derivation name.
func TestGenerateIdentifierValidity(t *testing.T) {
	model := helloModel()
	model.TargetList[0].TargetName = "3.weird target"

	d := NewDriver(model, DriverConfig{})
	out, err := d.Generate()
	require.NoError(t, err)

	validName := regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "link_") && !strings.HasPrefix(line, "custom_") {
			continue
		}
		name, _, found := strings.Cut(line, " = ")
		require.True(t, found)
		assert.Regexp(t, validName, name)
		assert.False(t, reservedWords[name])
	}
	assert.Contains(t, out, "link__3_weird_target")
}

func TestWriteIfChanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.nix")

	require.NoError(t, WriteIfChanged(path, "content-a"))
	info1, err := os.Stat(path)
	require.NoError(t, err)

	// Unchanged content must not rewrite the file.
	require.NoError(t, WriteIfChanged(path, "content-a"))
	info2, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime())

	require.NoError(t, WriteIfChanged(path, "content-b"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content-b", string(data))
}
