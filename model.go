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

// Package nixgen translates a resolved build-target model into a Nix
// derivation graph. The target model itself (parsing build scripts,
// resolving generator expressions, running feature probes) is produced by a
// front-end outside this package; nixgen only consumes the read-only views
// declared in this file.
package nixgen

// TargetKind is the kind of artifact a Target produces.
type TargetKind int

const (
	Executable TargetKind = iota
	StaticLibrary
	SharedLibrary
	ModuleLibrary
	ObjectLibrary
)

func (k TargetKind) String() string {
	switch k {
	case Executable:
		return "executable"
	case StaticLibrary:
		return "static"
	case SharedLibrary:
		return "shared"
	case ModuleLibrary:
		return "module"
	case ObjectLibrary:
		return "object"
	default:
		return "unknown"
	}
}

// Language is a translation-unit source language.
type Language string

const (
	LangC       Language = "C"
	LangCXX     Language = "CXX"
	LangFortran Language = "Fortran"
	LangCUDA    Language = "CUDA"
	LangSwift   Language = "Swift"
	LangASM     Language = "ASM"
	LangASMATT  Language = "ASM-ATT"
	LangASMNASM Language = "ASM_NASM"
	LangASMMASM Language = "ASM_MASM"
)

// LanguageForSuffix classifies a header/source file by its suffix. The header
// scanner does not call it: recursive scans of included files reuse the
// including source's compiler command.
func LanguageForSuffix(path string) Language {
	switch suffix(path) {
	case ".c":
		return LangC
	case ".cc", ".cpp", ".cxx", ".h", ".hpp", ".hh", ".hxx":
		return LangCXX
	case ".cu", ".cuh":
		return LangCUDA
	case ".f", ".f90", ".f95":
		return LangFortran
	case ".s":
		return LangASM
	case ".swift":
		return LangSwift
	default:
		return LangCXX
	}
}

func suffix(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' {
			break
		}
	}
	return ""
}

// SourceFile is a single translation unit belonging to a Target.
type SourceFile struct {
	Path        string
	Language    Language
	IsGenerated bool
	SkipPCH     bool
}

// LinkItemKind distinguishes the three kinds of link-implementation entry.
type LinkItemKind int

const (
	LinkInternalTarget LinkItemKind = iota
	LinkImportedTarget
	LinkRawLibrary
)

// LinkItem is one entry of a target's ordered link implementation.
type LinkItem struct {
	Kind LinkItemKind
	// Name is the referenced target name, the imported-target name
	// (e.g. "ZLIB::ZLIB"), or the raw library string/path.
	Name string
}

// InstallGen is a single install rule attached to a target.
type InstallGen struct {
	// Destination is assumed already resolved (no generator expressions).
	Destination string
}

// CustomCommand is one pre-build/pre-link/post-build/per-source command.
type CustomCommand struct {
	Outputs      []string
	WorkingDir   string
	CommandLines [][]string
	Inputs       []string
}

// PrimaryOutput is the first declared output, the custom-command handler's
// keying field.
func (c CustomCommand) PrimaryOutput() string {
	if len(c.Outputs) == 0 {
		return ""
	}
	return c.Outputs[0]
}

// Target is the read-only view the core needs from the configure-time
// front-end. The core never mutates it.
type Target interface {
	Name() string
	Kind() TargetKind
	Sources(config string) []SourceFile
	LinkImpl(config string) []LinkItem
	IncludeDirs(lang Language, config string) []string
	CompileFlags(lang Language, config string) []string
	Defines(lang Language, config string) []string
	Feature(name, config string) (string, bool)
	Property(name string) (string, bool)
	InstallGenerators() []InstallGen
	PreBuildCommands() []CustomCommand
	PreLinkCommands() []CustomCommand
	PostBuildCommands() []CustomCommand
	SourceCommand(path string) (CustomCommand, bool)
	PCHSource(config string, lang Language, arch string) (string, bool)
	PCHHeader(config string, lang Language, arch string) (string, bool)
	PCHFile(config string, lang Language, arch string) (string, bool)
	PCHArchs(config string, lang Language) []string
}

// Model is the whole consumed build description: every target plus the
// roots needed for path classification.
type Model interface {
	Targets() []Target
	Configs() []string
	ProjectRoot() string
	BuildRoot() string
}

// ExternalModuleUser is an optional Model capability: front-ends that can
// report which source-time fetching modules a build script used (for the
// external-project guard) implement it.
type ExternalModuleUser interface {
	UsedModules() []string
}
