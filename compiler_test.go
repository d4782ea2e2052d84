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

func TestCompilerResolverDefaults(t *testing.T) {
	cases := []struct {
		lang    Language
		pkg     string
		command string
	}{
		{LangC, "gcc", "gcc"},
		{LangASM, "gcc", "gcc"},
		{LangASMATT, "gcc", "gcc"},
		{LangCXX, "stdenv.cc", "g++"},
		{LangFortran, "gfortran", "gfortran"},
		{LangCUDA, "cudatoolkit", "nvcc"},
		{LangASMNASM, "nasm", "nasm"},
		{LangASMMASM, "masm", "ml"},
		{LangSwift, "swift", "swiftc"},
	}
	for _, c := range cases {
		t.Run(string(c.lang), func(t *testing.T) {
			r := NewCompilerResolver(false)
			info := r.Resolve(c.lang)
			assert.Equal(t, c.pkg, info.Package)
			assert.Equal(t, c.command, info.Command)
		})
	}
}

func TestCompilerResolverEnvOverrideWins(t *testing.T) {
	t.Setenv("NIX_CXX_COMPILER_PACKAGE", "my-toolchain")
	r := NewCompilerResolver(false)
	r.SetCompilerID(LangCXX, "Clang")

	info := r.Resolve(LangCXX)
	assert.Equal(t, "my-toolchain", info.Package, "user override must beat compiler-ID")
	assert.Equal(t, "g++", info.Command, "override replaces the package, not the command")
}

func TestCompilerResolverOverrideEnvVarNames(t *testing.T) {
	assert.Equal(t, "NIX_C_COMPILER_PACKAGE", overrideEnvVar(LangC))
	assert.Equal(t, "NIX_ASM_ATT_COMPILER_PACKAGE", overrideEnvVar(LangASMATT))
	assert.Equal(t, "NIX_ASM_NASM_COMPILER_PACKAGE", overrideEnvVar(LangASMNASM))
}

func TestCompilerResolverCompilerID(t *testing.T) {
	r := NewCompilerResolver(false)
	r.SetCompilerID(LangCXX, "AppleClang")
	assert.Equal(t, CompilerInfo{Package: "llvmPackages.clang", Command: "clang++"}, r.Resolve(LangCXX))

	r.SetCompilerID(LangC, "Intel")
	assert.Equal(t, CompilerInfo{Package: "intel-compiler", Command: "icc"}, r.Resolve(LangC))

	r.SetCompilerID(LangFortran, "Clang")
	assert.Equal(t, "gfortran", r.Resolve(LangFortran).Package, "unknown ID combos fall through to the default")
}

func TestCompilerResolverBinarySniffing(t *testing.T) {
	r := NewCompilerResolver(false)
	r.SetCompilerBinary(LangC, "/opt/llvm/bin/clang")
	assert.Equal(t, CompilerInfo{Package: "llvmPackages.clang", Command: "clang"}, r.Resolve(LangC))

	r.SetCompilerBinary(LangFortran, "/usr/bin/ifort")
	assert.Equal(t, "ifort", r.Resolve(LangFortran).Command)
}

func TestCompilerResolverCrossSuffix(t *testing.T) {
	r := NewCompilerResolver(true)
	assert.Equal(t, "gcc-cross", r.Resolve(LangC).Package)
	assert.Equal(t, "gcc", r.Resolve(LangC).Command, "cross suffix applies to the package only")
}

func TestCompilerResolverCachesPerLanguage(t *testing.T) {
	r := NewCompilerResolver(false)
	first := r.Resolve(LangC)
	// A later ID change invalidates the cache for that language.
	r.SetCompilerID(LangC, "Clang")
	second := r.Resolve(LangC)
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, r.Resolve(LangC))
}
