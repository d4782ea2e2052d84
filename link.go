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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

// LinkDerivation is one per-target link step.
type LinkDerivation struct {
	DerivationName  string
	TargetName      string
	Kind            TargetKind
	Objects         []string
	Compiler        CompilerInfo
	CompilerCommand string // omitted at emission when equal to Compiler.Command
	Flags           []string
	Libraries       []string
	BuildInputs     []string
	Version         string
	SOVersion       string
	PostBuildPhase  string
}

// LinkSynth performs per-target link-derivation synthesis.
type LinkSynth struct {
	Cache       *Cache
	Graph       *DependencyGraph
	ObjectsOf   map[string][]*ObjectDerivation // target -> its object derivations, in source order
	ObjLibOwner map[string]string              // external object path -> owning object-library target
	Resolver    *CompilerResolver

	warnedUnityBatch map[string]bool

	// IsTryCompileProbe reports whether buildDir is a try-compile probe
	// directory. nil means "never a probe".
	IsTryCompileProbe func(buildDir string) bool
	BuildDir          string
}

func NewLinkSynth(cache *Cache, graph *DependencyGraph, resolver *CompilerResolver) *LinkSynth {
	return &LinkSynth{
		Cache:            cache,
		Graph:            graph,
		ObjectsOf:        make(map[string][]*ObjectDerivation),
		ObjLibOwner:      make(map[string]string),
		Resolver:         resolver,
		warnedUnityBatch: make(map[string]bool),
	}
}

// primaryLanguage picks C++ > Fortran > C precedence over a target's source
// languages.
func primaryLanguage(sources []SourceFile) Language {
	hasCXX, hasFortran, hasC := false, false, false
	for _, s := range sources {
		switch s.Language {
		case LangCXX:
			hasCXX = true
		case LangFortran:
			hasFortran = true
		case LangC:
			hasC = true
		}
	}
	switch {
	case hasCXX:
		return LangCXX
	case hasFortran:
		return LangFortran
	case hasC:
		return LangC
	default:
		return LangCXX
	}
}

func outputName(name string, kind TargetKind) string {
	switch kind {
	case SharedLibrary:
		return "lib" + name + ".so"
	case ModuleLibrary:
		return name + ".so"
	default:
		return name
	}
}

func nixTargetType(kind TargetKind) string {
	switch kind {
	case StaticLibrary:
		return "static"
	case SharedLibrary:
		return "shared"
	case ModuleLibrary:
		return "module"
	default:
		return "executable"
	}
}

// Synthesize computes the full link context for target.
func (s *LinkSynth) Synthesize(target Target, config string, diags *Diagnostics) (*LinkDerivation, error) {
	config = EffectiveConfig(config)
	name := "link_" + SanitizeIdentifier(target.Name())

	ld := &LinkDerivation{
		DerivationName: name,
		TargetName:     target.Name(),
		Kind:           target.Kind(),
	}

	sources := target.Sources(config)
	lang := primaryLanguage(sources)
	ld.Compiler = s.Resolver.Resolve(lang)
	ld.CompilerCommand = ld.Compiler.Command

	s.collectObjects(target, config, ld, diags)

	if err := s.resolveLibraries(target, config, ld); err != nil {
		return nil, err
	}

	if target.Kind() == SharedLibrary {
		if v, ok := target.Property("VERSION"); ok {
			ld.Version = v
		}
		if v, ok := target.Property("SOVERSION"); ok {
			ld.SOVersion = v
		}
	}

	if s.IsTryCompileProbe != nil && s.IsTryCompileProbe(s.BuildDir) {
		ld.PostBuildPhase = tryCompilePostBuild(s.BuildDir, target.Name())
	}

	return ld, nil
}

// collectObjects walks the target's sources, skipping Unity-batch sources
// (warning once per target) and resolving external object-library inputs by
// reverse lookup.
func (s *LinkSynth) collectObjects(target Target, config string, ld *LinkDerivation, diags *Diagnostics) {
	for _, od := range s.ObjectsOf[target.Name()] {
		if isUnityBatch(SourceFile{Path: od.SourcePath}) {
			continue
		}
		ld.Objects = append(ld.Objects, od.DerivationName)
	}

	for _, item := range target.LinkImpl(config) {
		switch item.Kind {
		case LinkInternalTarget:
			if kind, ok := s.Graph.Kind(item.Name); ok && kind == ObjectLibrary {
				for _, od := range s.ObjectsOf[item.Name] {
					ld.Objects = append(ld.Objects, od.DerivationName)
				}
			}
		case LinkRawLibrary:
			// An external object path is resolved by reverse lookup to the
			// object-library target that owns it.
			if owner, ok := s.ObjLibOwner[item.Name]; ok {
				for _, od := range s.ObjectsOf[owner] {
					if od.SourcePath == item.Name || objectFileName(od.SourcePath) == filepath.Base(item.Name) {
						ld.Objects = append(ld.Objects, od.DerivationName)
					}
				}
			}
		}
	}

	for _, src := range target.Sources(config) {
		if isUnityBatch(src) {
			if !s.warnedUnityBatch[target.Name()] {
				s.warnedUnityBatch[target.Name()] = true
				diags.Add(warnf(target.Name(), "unity-batch sources are not supported; each source is compiled individually"))
				glog.Warningf("link: target %s uses unity-batch sources, unsupported", target.Name())
			}
		}
	}
}

func isUnityBatch(src SourceFile) bool {
	const marker = "Unity/unity_"
	return indexOf(src.Path, marker) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// resolveLibraries resolves the link implementation: imported targets via
// the package mapper, internal targets by kind-specific reference, raw
// libraries via -l<name>, plus static-library topological ordering and
// transitive shared-library build-input propagation. The ordered library list is
// memoized per (target, config) in the cache manager.
func (s *LinkSynth) resolveLibraries(target Target, config string, ld *LinkDerivation) error {
	for _, item := range target.LinkImpl(config) {
		switch item.Kind {
		case LinkImportedTarget:
			if info, ok := ResolveImportedTarget(item.Name); ok {
				ld.Flags = append(ld.Flags, info.LinkFlags...)
				if info.Package != "" {
					ld.BuildInputs = append(ld.BuildInputs, info.Package)
				}
			} else {
				glog.Warningf("link: unknown imported target %q referenced by %s, treating as raw library", item.Name, target.Name())
				ld.Flags = append(ld.Flags, "-l"+item.Name)
			}
		case LinkRawLibrary:
			if _, ok := s.ObjLibOwner[item.Name]; ok {
				// Already folded into the object list by collectObjects.
				continue
			}
			ld.Flags = append(ld.Flags, "-l"+item.Name)
			if info, ok := ResolveRawLibrary(item.Name); ok {
				if info.Package != "" {
					ld.BuildInputs = append(ld.BuildInputs, info.Package)
				}
			}
		}
	}

	libs, err := s.Cache.LibraryDeps(target.Name(), config, func() ([]string, error) {
		return s.orderedLibraries(target, config)
	})
	if err != nil {
		return err
	}
	ld.Libraries = libs

	for _, dep := range s.Graph.TransitiveSharedLibs(target.Name()) {
		ref := "link_" + SanitizeIdentifier(dep)
		if !containsFlag(ld.BuildInputs, ref) {
			ld.BuildInputs = append(ld.BuildInputs, ref)
		}
	}

	return nil
}

// orderedLibraries produces the internal-target library reference list:
// static libraries in topological link order (each one before the libraries
// it depends on) when any static library is reachable, shared and module
// libraries by their output path
// inside the producing link derivation.
func (s *LinkSynth) orderedLibraries(target Target, config string) ([]string, error) {
	var libs []string
	needsStaticOrder := false

	for _, item := range target.LinkImpl(config) {
		if item.Kind != LinkInternalTarget {
			continue
		}
		kind, known := s.Graph.Kind(item.Name)
		if !known {
			continue
		}
		switch kind {
		case StaticLibrary:
			needsStaticOrder = true
		case SharedLibrary:
			libs = append(libs, "${link_"+SanitizeIdentifier(item.Name)+"}/lib"+item.Name+".so")
		case ModuleLibrary:
			libs = append(libs, "${link_"+SanitizeIdentifier(item.Name)+"}/"+item.Name+".so")
		case ObjectLibrary:
			// objects already folded in by collectObjects.
		default:
			libs = append(libs, "${link_"+SanitizeIdentifier(item.Name)+"}")
		}
	}

	if needsStaticOrder {
		order, err := s.Graph.TopologicalOrderForLinking(target.Name())
		if err != nil {
			return nil, err
		}
		var statics []string
		for _, dep := range order {
			if dep == target.Name() {
				continue
			}
			if kind, ok := s.Graph.Kind(dep); ok && kind == StaticLibrary {
				statics = append(statics, "${link_"+SanitizeIdentifier(dep)+"}")
			}
		}
		// Static libraries first (each before its own dependencies), shared
		// libraries last.
		libs = append(statics, libs...)
	}

	return libs, nil
}

// tryCompilePostBuild builds the probe-result snippet: copy $out to
// <build-dir>/<target> and record its path in <build-dir>/<target>_loc.
// Arguments are POSIX-shell-escaped.
func tryCompilePostBuild(buildDir, target string) string {
	dest := buildDir + "/" + target
	locFile := buildDir + "/" + target + "_loc"
	return fmt.Sprintf(
		"cp -r $out %s\necho %s > %s",
		shellQuote(dest), shellQuote(dest), shellQuote(locFile),
	)
}

// Emit writes the "name = cmakeNixLD { … };" attribute assignment for ld
//.
func (ld *LinkDerivation) Emit(w *Writer) {
	w.line("%s = cmakeNixLD {", ld.DerivationName)
	w.indent++
	w.WriteAttrString("name", outputName(ld.TargetName, ld.Kind))
	w.WriteAttrString("type", nixTargetType(ld.Kind))
	w.WriteAttrList("objects", ld.Objects)
	w.WriteAttrRaw("compiler", ld.Compiler.Package)
	if ld.CompilerCommand != "" && ld.CompilerCommand != ld.Compiler.Command {
		w.WriteAttrString("compilerCommand", ld.CompilerCommand)
	}
	w.WriteAttrString("flags", strings.Join(ld.Flags, " "))
	quotedLibs := make([]string, len(ld.Libraries))
	for i, lib := range ld.Libraries {
		quotedLibs[i] = `"` + lib + `"`
	}
	w.WriteAttrList("libraries", quotedLibs)
	w.WriteAttrList("buildInputs", dedupe(ld.BuildInputs))
	if ld.Version != "" {
		w.WriteAttrString("version", ld.Version)
	}
	if ld.SOVersion != "" {
		w.WriteAttrString("soversion", ld.SOVersion)
	}
	if ld.PostBuildPhase != "" {
		w.StartMultiline("postBuildPhase")
		for _, line := range splitLines(ld.PostBuildPhase) {
			w.WriteMultilineLine(line)
		}
		w.EndMultiline()
	}
	w.indent--
	w.line("};")
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
