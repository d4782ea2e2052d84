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
	"sort"
	"strings"
)

// SourceForm is the source-composition strategy chosen for a
// translation unit, most specific first.
type SourceForm int

const (
	FormFilesetUnion SourceForm = iota
	FormComposite
	FormWholeDirectory
)

// ObjectDerivation is one per-(target, source) compile step.
type ObjectDerivation struct {
	DerivationName string
	TargetName     string
	SourcePath     string
	ObjectFileName string
	Language       Language
	Dependencies   []string

	Form         SourceForm
	IsExternal   bool // source resolves outside the project root
	Compiler     CompilerInfo
	Flags        []string
	BuildInputs  []string
	ConfigTime   []ConfigTimeFile // embedded here-doc files, composite form only
	ExternalDirs []string         // external include directories staged into the composite source
	Generated    []string         // project-local, produced by a custom command - maybeMissing in the fileset
}

// ConfigTimeFile pairs a configuration-time file's on-disk build-root
// location with the relative path the composed source tree exposes it
// under.
type ConfigTimeFile struct {
	DiskPath string
	RelPath  string
}

func (od *ObjectDerivation) generatedDeps() []string { return od.Generated }

// ObjectSynth performs per-translation-unit derivation synthesis.
type ObjectSynth struct {
	Cache           *Cache
	Classifier      *PathClassifier
	Resolver        *CompilerResolver
	Scanner         *HeaderScanner
	ExtHeaders      *ExternalHeaderRegistry
	CustomCmds      *CustomCommandHandler
	PCH             *PCHRegistry
	ExplicitSources bool // NIX_EXPLICIT_SOURCES
}

var unescapableChars = []byte{'"', '$', '`', '\n', '\r'}

func hasUnescapableChar(path string) bool {
	for _, c := range unescapableChars {
		if strings.IndexByte(path, c) >= 0 {
			return true
		}
	}
	return false
}

// Synthesize computes the full compile context for one (target, source)
// pair. It never mutates target or src.
func (s *ObjectSynth) Synthesize(target Target, src SourceFile, config string, diags *Diagnostics) (*ObjectDerivation, error) {
	if src.Path == "" {
		return nil, fatalf(target.Name(), "source with empty path")
	}
	if hasUnescapableChar(src.Path) {
		return nil, fatalf(target.Name(), "source path %q contains an unescapable character", src.Path)
	}

	config = EffectiveConfig(config)

	if !src.IsGenerated {
		if ok, warning := s.Classifier.ValidateSecurity(src.Path); ok && warning != "" {
			diags.Add(warnf(target.Name(), "%s", warning))
		}
	}

	name, err := s.Cache.DerivationName(target.Name(), src.Path, func() (string, error) {
		base := target.Name() + "_" + sanitizeBasename(src.Path) + "_o"
		return s.Cache.UniqueName(base), nil
	})
	if err != nil {
		return nil, err
	}

	od := &ObjectDerivation{
		DerivationName: name,
		TargetName:     target.Name(),
		SourcePath:     src.Path,
		ObjectFileName: objectFileName(src.Path),
		Language:       src.Language,
		IsExternal:     filepath.IsAbs(src.Path) && !s.Classifier.IsProjectLocal(src.Path),
	}

	od.Compiler = s.Resolver.Resolve(src.Language)

	flags, configTimeFromFlags := s.assembleFlags(target, src, config)
	od.Flags = flags
	od.ConfigTime = append(od.ConfigTime, configTimeFromFlags...)

	isShared := target.Kind() == SharedLibrary || target.Kind() == ModuleLibrary
	if isShared && !containsFlag(od.Flags, "-fPIC") {
		od.Flags = append(od.Flags, "-fPIC")
	}

	// Without NIX_EXPLICIT_SOURCES the scan cost is skipped entirely and
	// the source form falls back to whole-directory.
	if s.ExplicitSources {
		headerRes, err := s.Scanner.Scan(src.Path, od.Compiler.Command, od.Flags)
		if err != nil {
			diags.Add(warnf(target.Name(), "header scan failed for %s: %v", src.Path, err))
		}

		od.Dependencies = append(append([]string{}, headerRes.Existing...), headerRes.Generated...)
		od.Generated = headerRes.Generated
		for _, h := range headerRes.ConfigTime {
			od.ConfigTime = append(od.ConfigTime, s.configTimeFile(h))
		}
		s.ExtHeaders.Add(headerRes.ExternalByDir)

		for dir := range headerRes.ExternalByDir {
			od.ExternalDirs = append(od.ExternalDirs, dir)
		}
		sort.Strings(od.ExternalDirs)
		for _, dir := range od.ExternalDirs {
			if name, ok := s.ExtHeaders.NameFor(dir); ok {
				od.BuildInputs = append(od.BuildInputs, name)
			}
		}

		for _, h := range headerRes.CommandProduced {
			if cc, ok := s.CustomCmds.ProducerOf(h); ok {
				od.BuildInputs = append(od.BuildInputs, cc.DerivationName)
			}
		}
	}

	if cc, ok := s.CustomCmds.ProducerOf(src.Path); ok && src.IsGenerated {
		od.BuildInputs = append(od.BuildInputs, cc.DerivationName)
	}

	if s.PCH != nil {
		od.BuildInputs = append(od.BuildInputs, s.PCH.DepsFor(target.Name(), src)...)
	}

	od.Form = chooseSourceForm(od, s.ExplicitSources)
	od.Compiler.Package = maybe32Bit(od.Compiler.Package, od.Flags)
	od.BuildInputs = append(od.BuildInputs, od.Compiler.Package)

	return od, nil
}

func maybe32Bit(pkg string, flags []string) string {
	for _, f := range flags {
		if f == "-m32" {
			return pkg + "_32bit"
		}
	}
	return pkg
}

// chooseSourceForm picks among the three strategies, most specific
// first.
func chooseSourceForm(od *ObjectDerivation, explicit bool) SourceForm {
	if len(od.ConfigTime) > 0 || len(od.ExternalDirs) > 0 || od.IsExternal {
		return FormComposite
	}
	if explicit {
		return FormFilesetUnion
	}
	if len(od.Dependencies) == 0 {
		return FormWholeDirectory
	}
	return FormFilesetUnion
}

// assembleFlags concatenates the compile-flag pipeline. Returns the
// assembled flags and any build-directory files referenced via
// -imacros/-include that need embedding as configuration-time content.
func (s *ObjectSynth) assembleFlags(target Target, src SourceFile, config string) ([]string, []ConfigTimeFile) {
	var flags []string
	var configTime []ConfigTimeFile

	flags = append(flags, ConfigFlags(config)...)
	flags = append(flags, tokenizeAll(target.CompileFlags(src.Language, config))...)

	for _, d := range target.Defines(src.Language, config) {
		flags = append(flags, "-D"+d)
	}

	for _, inc := range target.IncludeDirs(src.Language, config) {
		if s.Classifier.IsSystem(inc) {
			continue
		}
		flags = append(flags, "-I"+s.Classifier.Normalize(inc))
	}

	if std, ok := standardFlag(target, src.Language, config); ok {
		flags = append(flags, std)
	}

	if !src.SkipPCH {
		if hdr, ok := target.PCHHeader(config, src.Language, ""); ok && hdr != "" {
			flags = append(flags, "-include", hdr)
		}
	}

	if isAssembly(src.Language) {
		flags = append(flags, "-o", objectFileName(src.Path))
	}

	flags, embedded := s.rewriteBuildDirFlags(flags)
	configTime = append(configTime, embedded...)

	return flags, configTime
}

func isAssembly(lang Language) bool {
	return lang == LangASM || lang == LangASMATT || lang == LangASMNASM || lang == LangASMMASM
}

func standardFlag(target Target, lang Language, config string) (string, bool) {
	switch lang {
	case LangCXX:
		if v, ok := target.Feature("CXX_STANDARD", config); ok && v != "" {
			return "-std=c++" + v, true
		}
	case LangC:
		if v, ok := target.Feature("C_STANDARD", config); ok && v != "" {
			return "-std=c" + v, true
		}
	}
	return "", false
}

// configTimeFile pairs a build-root file with the relative path it will be
// embedded under inside a composed source tree.
func (s *ObjectSynth) configTimeFile(path string) ConfigTimeFile {
	rel, err := filepath.Rel(s.Classifier.BuildRoot, path)
	if err != nil || s.Classifier.IsOutsideTree(rel) {
		rel = filepath.Base(path)
	}
	return ConfigTimeFile{DiskPath: path, RelPath: rel}
}

// rewriteBuildDirFlags recognizes -imacros/-include arguments that point
// into the build directory and rewrites them to the relative path the
// composed source root will expose them under, returning those files for
// configuration-time embedding.
func (s *ObjectSynth) rewriteBuildDirFlags(flags []string) ([]string, []ConfigTimeFile) {
	var out []string
	var embedded []ConfigTimeFile
	for i := 0; i < len(flags); i++ {
		f := flags[i]
		if (f == "-imacros" || f == "-include") && i+1 < len(flags) {
			file := flags[i+1]
			if filepath.IsAbs(file) && s.Classifier.IsBuildLocal(file) {
				ctf := s.configTimeFile(file)
				embedded = append(embedded, ctf)
				out = append(out, f, ctf.RelPath)
				i++
				continue
			}
		}
		out = append(out, f)
	}
	return out, embedded
}

// tokenizeAll shell-tokenizes each raw flag string, honoring Unix-style
// quoting; a single token containing whitespace and no surrounding quotes
// is split further.
func tokenizeAll(raw []string) []string {
	var out []string
	for _, r := range raw {
		out = append(out, shellTokenize(r)...)
	}
	return out
}

func shellTokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	inSingle, inDouble := false, false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inSingle:
			if c == '\'' {
				inSingle = false
			} else {
				cur.WriteByte(c)
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			} else {
				cur.WriteByte(c)
			}
		case c == '\'':
			inSingle = true
		case c == '"':
			inDouble = true
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return tokens
}

func containsFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func objectFileName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + ".o"
}

func sanitizeBasename(sourcePath string) string {
	return SanitizeIdentifier(strings.TrimPrefix(sourcePath, "./"))
}

// Emit writes the "name = cmakeNixCC { … };" attribute assignment for od.
// A composite source derivation, when needed, is written as its own
// let-binding immediately before the compile derivation that consumes it.
func (od *ObjectDerivation) Emit(w *Writer) {
	if od.Form == FormComposite {
		od.emitCompositeSource(w)
	}

	w.line("%s = cmakeNixCC {", od.DerivationName)
	w.indent++
	w.WriteAttrString("name", od.ObjectFileName)

	switch od.Form {
	case FormFilesetUnion:
		generated := make(map[string]bool, len(od.generatedDeps()))
		for _, g := range od.generatedDeps() {
			generated[pathToken(g)] = true
		}
		paths := []string{pathToken(od.SourcePath)}
		for _, d := range od.Dependencies {
			paths = append(paths, pathToken(d))
		}
		w.WriteFilesetUnion("src", "./.", paths, generated)
	case FormComposite:
		w.WriteAttrRaw("src", od.compositeSourceName())
	default:
		w.WriteAttrRaw("src", "./.")
	}

	w.WriteAttrString("source", od.SourcePath)
	w.WriteAttrRaw("compiler", od.Compiler.Package)
	w.WriteAttrString("flags", strings.Join(od.Flags, " "))
	w.WriteAttrList("buildInputs", dedupe(od.BuildInputs))
	w.indent--
	w.line("};")
}

// pathToken renders a project-relative path as a bare Nix path literal
// (fileset members are path values, not strings).
func pathToken(p string) string {
	p = strings.TrimPrefix(p, "./")
	return "./" + p
}

func (od *ObjectDerivation) compositeSourceName() string {
	return "src_" + od.DerivationName
}

// emitCompositeSource writes the build-phase-constructed source
// derivation: copy the project tree, embed each configuration-time file
// via a here-doc with a per-file unique delimiter, and stage external
// include directories under their absolute path prefix.
func (od *ObjectDerivation) emitCompositeSource(w *Writer) {
	name := od.compositeSourceName()
	w.line("%s = stdenv.mkDerivation {", name)
	w.indent++
	w.WriteAttrString("name", name)
	w.WriteAttrRaw("src", "./.")
	w.StartMultiline("buildCommand")
	w.WriteMultilineLine("mkdir -p $out")
	w.WriteMultilineLine("cp -r $src/. $out/")
	for _, f := range od.ConfigTime {
		content, err := readFile(f.DiskPath)
		if err != nil {
			w.WriteComment(fmt.Sprintf("configuration-time file %s could not be read: %v", f.DiskPath, err))
			continue
		}
		delim := hereDocDelimiter(f.DiskPath)
		if dir := filepath.Dir(f.RelPath); dir != "." {
			w.WriteMultilineLine(fmt.Sprintf("mkdir -p $out/%s", dir))
		}
		w.WriteMultilineLine(fmt.Sprintf("cat > $out/%s << '%s'", f.RelPath, delim))
		for _, line := range splitLines(string(content)) {
			w.WriteMultilineLine(line)
		}
		w.WriteMultilineLine(delim)
	}
	for _, dir := range od.ExternalDirs {
		w.WriteMultilineLine(fmt.Sprintf("mkdir -p $out%s", dir))
		w.WriteMultilineLine(fmt.Sprintf("cp -r ${/. + %q}/. $out%s/", dir, dir))
	}
	if od.IsExternal {
		dir := filepath.Dir(od.SourcePath)
		w.WriteMultilineLine(fmt.Sprintf("mkdir -p $out%s", dir))
		w.WriteMultilineLine(fmt.Sprintf("cp ${/. + %q} $out%s", od.SourcePath, od.SourcePath))
	}
	w.EndMultiline()
	w.indent--
	w.line("};")
}

// hereDocDelimiter derives a per-file unique delimiter from a hash of the
// path, so embedded content can never terminate the here-doc early
//.
func hereDocDelimiter(path string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(path); i++ {
		h ^= uint32(path[i])
		h *= 16777619
	}
	return fmt.Sprintf("NIXGEN_EOF_%08x", h)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
