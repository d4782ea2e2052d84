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
	"strings"
	"sync"

	"github.com/golang/glog"
)

// CompilerInfo is the resolved (package, command) pair for a language.
type CompilerInfo struct {
	Package string
	Command string
}

// defaultCompilerTable is the built-in language -> (package, command) table.
var defaultCompilerTable = map[Language]CompilerInfo{
	LangC:       {Package: "gcc", Command: "gcc"},
	LangASM:     {Package: "gcc", Command: "gcc"},
	LangASMATT:  {Package: "gcc", Command: "gcc"},
	LangCXX:     {Package: "stdenv.cc", Command: "g++"},
	LangFortran: {Package: "gfortran", Command: "gfortran"},
	LangCUDA:    {Package: "cudatoolkit", Command: "nvcc"},
	LangASMNASM: {Package: "nasm", Command: "nasm"},
	LangASMMASM: {Package: "masm", Command: "ml"},
	LangSwift:   {Package: "swift", Command: "swiftc"},
}

// CompilerResolver implements a layered lookup: user override env var,
// then compiler-ID, then compiler-binary sniffing, then the language
// default. Results are cached per language.
type CompilerResolver struct {
	CrossCompiling bool

	mu          sync.Mutex
	cache       map[Language]CompilerInfo
	compilerID  map[Language]string
	compilerBin map[Language]string
}

func NewCompilerResolver(crossCompiling bool) *CompilerResolver {
	return &CompilerResolver{
		CrossCompiling: crossCompiling,
		cache:          make(map[Language]CompilerInfo),
		compilerID:     make(map[Language]string),
		compilerBin:    make(map[Language]string),
	}
}

// SetCompilerID records the detected compiler-ID (GNU/Clang/AppleClang/…)
// for lang, consulted when no user override is set.
func (r *CompilerResolver) SetCompilerID(lang Language, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compilerID[lang] = id
	delete(r.cache, lang)
}

// SetCompilerBinary records the basename of the compiler binary actually
// configured for lang, the third lookup tier.
func (r *CompilerResolver) SetCompilerBinary(lang Language, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compilerBin[lang] = path
	delete(r.cache, lang)
}

func overrideEnvVar(lang Language) string {
	name := strings.ToUpper(strings.ReplaceAll(string(lang), "-", "_"))
	return "NIX_" + name + "_COMPILER_PACKAGE"
}

// Resolve returns the (package, command) pair for lang per the lookup
// precedence: override env var, then compiler-ID, then binary sniffing,
// then default.
func (r *CompilerResolver) Resolve(lang Language) CompilerInfo {
	r.mu.Lock()
	if v, ok := r.cache[lang]; ok {
		r.mu.Unlock()
		return v
	}
	r.mu.Unlock()

	info := r.resolveUncached(lang)

	r.mu.Lock()
	r.cache[lang] = info
	r.mu.Unlock()
	return info
}

func (r *CompilerResolver) resolveUncached(lang Language) CompilerInfo {
	def := defaultCompilerTable[lang]

	if pkg := os.Getenv(overrideEnvVar(lang)); pkg != "" {
		glog.V(1).Infof("compiler resolver: %s overridden to package %q", lang, pkg)
		return CompilerInfo{Package: r.maybeCross(pkg), Command: def.Command}
	}

	r.mu.Lock()
	id := r.compilerID[lang]
	bin := r.compilerBin[lang]
	r.mu.Unlock()

	if id != "" {
		info := compilerInfoForID(lang, id, def)
		glog.V(1).Infof("compiler resolver: %s resolved via compiler-ID %q -> %+v", lang, id, info)
		return CompilerInfo{Package: r.maybeCross(info.Package), Command: info.Command}
	}

	if bin != "" {
		info := compilerInfoForBinary(lang, bin, def)
		glog.V(1).Infof("compiler resolver: %s resolved via binary %q -> %+v", lang, bin, info)
		return CompilerInfo{Package: r.maybeCross(info.Package), Command: info.Command}
	}

	glog.V(1).Infof("compiler resolver: %s defaulted to %+v", lang, def)
	return CompilerInfo{Package: r.maybeCross(def.Package), Command: def.Command}
}

func (r *CompilerResolver) maybeCross(pkg string) string {
	if r.CrossCompiling && pkg != "" {
		return pkg + "-cross"
	}
	return pkg
}

func compilerInfoForID(lang Language, id string, def CompilerInfo) CompilerInfo {
	switch {
	case lang == LangCXX:
		switch id {
		case "Clang", "AppleClang":
			return CompilerInfo{Package: "llvmPackages.clang", Command: "clang++"}
		default:
			return def
		}
	case lang == LangC || lang == LangASM || lang == LangASMATT:
		switch id {
		case "Clang", "AppleClang":
			return CompilerInfo{Package: "llvmPackages.clang", Command: "clang"}
		case "Intel":
			return CompilerInfo{Package: "intel-compiler", Command: "icc"}
		default:
			return def
		}
	default:
		return def
	}
}

func compilerInfoForBinary(lang Language, binPath string, def CompilerInfo) CompilerInfo {
	base := filepath.Base(binPath)
	switch {
	case strings.Contains(base, "clang++"):
		return CompilerInfo{Package: "llvmPackages.clang", Command: "clang++"}
	case strings.Contains(base, "clang"):
		return CompilerInfo{Package: "llvmPackages.clang", Command: "clang"}
	case strings.Contains(base, "g++"):
		return CompilerInfo{Package: "stdenv.cc", Command: "g++"}
	case strings.Contains(base, "gcc"):
		return CompilerInfo{Package: "gcc", Command: "gcc"}
	case strings.Contains(base, "ifort"):
		return CompilerInfo{Package: "intel-compiler", Command: "ifort"}
	case strings.Contains(base, "nvcc"):
		return CompilerInfo{Package: "cudatoolkit", Command: "nvcc"}
	default:
		return def
	}
}
