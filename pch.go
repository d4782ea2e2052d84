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

// pchLanguages are the languages that support precompiled headers.
var pchLanguages = []Language{LangC, LangCXX}

// PCHDerivation is one precompiled-header creation step: it compiles the
// generated PCH source into the PCH file that consuming translation units
// reference as a build input.
type PCHDerivation struct {
	DerivationName string
	TargetName     string
	SourcePath     string
	HeaderPath     string
	OutputFile     string
	Language       Language
	Arch           string
	Compiler       CompilerInfo
	Flags          []string
}

// NeedsPCH reports whether target wants precompiled-header support for
// lang: the PRECOMPILE_HEADERS property is set, DISABLE_PRECOMPILE_HEADERS
// is not on, and the language supports PCH.
func NeedsPCH(target Target, lang Language) bool {
	if v, ok := target.Property("PRECOMPILE_HEADERS"); !ok || v == "" {
		return false
	}
	if v, ok := target.Property("DISABLE_PRECOMPILE_HEADERS"); ok && isOn(v) {
		return false
	}
	for _, l := range pchLanguages {
		if lang == l {
			return true
		}
	}
	return false
}

func isOn(v string) bool {
	switch strings.ToUpper(v) {
	case "ON", "TRUE", "YES", "1":
		return true
	default:
		return false
	}
}

// pchCreateFlag is the compiler flag that switches a compilation to
// header-precompilation mode for lang.
func pchCreateFlag(lang Language) string {
	if lang == LangCXX {
		return "-x c++-header"
	}
	return "-x c-header"
}

// PCHRegistry records, per target, the PCH creation derivations and the
// source paths they consume, so the object synthesizer can tell create
// from use: a PCH source gets no regular object derivation, every other
// source of that language references the PCH derivation as a build input.
type PCHRegistry struct {
	derivs  map[string][]*PCHDerivation
	sources map[string]map[string]bool
}

func NewPCHRegistry() *PCHRegistry {
	return &PCHRegistry{
		derivs:  make(map[string][]*PCHDerivation),
		sources: make(map[string]map[string]bool),
	}
}

func (r *PCHRegistry) Add(targetName string, ds []*PCHDerivation) {
	if len(ds) == 0 {
		return
	}
	r.derivs[targetName] = append(r.derivs[targetName], ds...)
	set, ok := r.sources[targetName]
	if !ok {
		set = make(map[string]bool)
		r.sources[targetName] = set
	}
	for _, d := range ds {
		set[d.SourcePath] = true
	}
}

// IsPCHSource reports whether path is a PCH-creating source of target; such
// a source is compiled by its PCH derivation, not by a regular object
// derivation.
func (r *PCHRegistry) IsPCHSource(targetName, path string) bool {
	return r.sources[targetName][path]
}

// DepsFor returns the PCH derivation names src depends on: none when the
// source opts out via SkipPCH or is itself a PCH source, otherwise every
// PCH derivation of the target for the source's language.
func (r *PCHRegistry) DepsFor(targetName string, src SourceFile) []string {
	if src.SkipPCH || r.IsPCHSource(targetName, src.Path) {
		return nil
	}
	var out []string
	for _, d := range r.derivs[targetName] {
		if d.Language == src.Language {
			out = append(out, d.DerivationName)
		}
	}
	return out
}

// SynthesizePCH builds the PCH creation derivations for target, one per
// (language, architecture) pair that declares a PCH source. The derivation
// name is "<target>_pch_<lang>[_<arch>]".
func (s *ObjectSynth) SynthesizePCH(target Target, config string) []*PCHDerivation {
	config = EffectiveConfig(config)
	var out []*PCHDerivation

	for _, lang := range pchLanguages {
		if !NeedsPCH(target, lang) {
			continue
		}
		archs := target.PCHArchs(config, lang)
		if len(archs) == 0 {
			archs = []string{""}
		}
		for _, arch := range archs {
			srcPath, ok := target.PCHSource(config, lang, arch)
			if !ok || srcPath == "" {
				continue
			}
			header, _ := target.PCHHeader(config, lang, arch)
			file, _ := target.PCHFile(config, lang, arch)
			if file == "" && header != "" {
				file = header + ".gch"
			}

			base := target.Name() + "_pch_" + string(lang)
			if arch != "" {
				base += "_" + arch
			}

			// SkipPCH here keeps the use-side -include out of the creation
			// flags; the create-mode flag replaces it.
			flags, _ := s.assembleFlags(target, SourceFile{Path: srcPath, Language: lang, SkipPCH: true}, config)
			flags = append(strings.Fields(pchCreateFlag(lang)), flags...)

			out = append(out, &PCHDerivation{
				DerivationName: s.Cache.UniqueName(base),
				TargetName:     target.Name(),
				SourcePath:     srcPath,
				HeaderPath:     header,
				OutputFile:     file,
				Language:       lang,
				Arch:           arch,
				Compiler:       s.Resolver.Resolve(lang),
				Flags:          flags,
			})
		}
	}
	return out
}

// Emit writes the PCH creation derivation through the shared compile
// helper; the output is the PCH file itself rather than an object file.
func (p *PCHDerivation) Emit(w *Writer) {
	w.line("%s = cmakeNixCC {", p.DerivationName)
	w.indent++
	w.WriteAttrString("name", filepath.Base(p.OutputFile))
	w.WriteAttrRaw("src", "./.")
	w.WriteAttrString("source", p.SourcePath)
	w.WriteAttrRaw("compiler", p.Compiler.Package)
	w.WriteAttrString("flags", strings.Join(p.Flags, " "))
	w.WriteAttrList("buildInputs", []string{p.Compiler.Package})
	w.indent--
	w.line("};")
}
