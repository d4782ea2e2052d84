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

// MemModel and MemTarget are an in-memory implementation of Model/Target.
// They serve two purposes: the unit test suite's fake front-end, and the
// YAML fixture loader used by cmd/nixgen's generate subcommand to stand in
// for the out-of-scope CMake configure-time front-end.
type MemModel struct {
	TargetList   []*MemTarget `yaml:"targets"`
	ConfigList   []string     `yaml:"configs"`
	Project      string       `yaml:"projectRoot"`
	Build        string       `yaml:"buildRoot"`
	ModulesInUse []string     `yaml:"externalModules,omitempty"`
}

func (m *MemModel) Targets() []Target {
	out := make([]Target, len(m.TargetList))
	for i, t := range m.TargetList {
		out[i] = t
	}
	return out
}

func (m *MemModel) Configs() []string {
	if len(m.ConfigList) == 0 {
		return []string{DefaultConfig}
	}
	return m.ConfigList
}

func (m *MemModel) ProjectRoot() string { return m.Project }
func (m *MemModel) BuildRoot() string   { return m.Build }
func (m *MemModel) UsedModules() []string {
	return m.ModulesInUse
}

// MemTarget is a plain-data Target.
type MemTarget struct {
	TargetName    string                       `yaml:"name"`
	TargetKind    TargetKind                    `yaml:"kind"`
	SourceList    []SourceFile                  `yaml:"sources"`
	LinkItems     []LinkItem                    `yaml:"linkImpl"`
	Includes      map[Language][]string         `yaml:"includeDirs,omitempty"`
	Flags         map[Language][]string         `yaml:"compileFlags,omitempty"`
	DefineList    map[Language][]string         `yaml:"defines,omitempty"`
	Features      map[string]string              `yaml:"features,omitempty"`
	Properties    map[string]string              `yaml:"properties,omitempty"`
	Installs      []InstallGen                   `yaml:"installs,omitempty"`
	PreBuild      []CustomCommand                `yaml:"preBuild,omitempty"`
	PreLink       []CustomCommand                `yaml:"preLink,omitempty"`
	PostBuild     []CustomCommand                `yaml:"postBuild,omitempty"`
	SourceCmds    map[string]CustomCommand        `yaml:"sourceCommands,omitempty"`
	PCHSources    map[string]string               `yaml:"pchSources,omitempty"` // keyed by language
	PCHHeaders    map[string]string               `yaml:"pchHeaders,omitempty"`
	PCHFiles      map[string]string               `yaml:"pchFiles,omitempty"`
	PCHArchList   map[string][]string             `yaml:"pchArchs,omitempty"`
}

func (t *MemTarget) Name() string     { return t.TargetName }
func (t *MemTarget) Kind() TargetKind { return t.TargetKind }

func (t *MemTarget) Sources(config string) []SourceFile { return t.SourceList }

func (t *MemTarget) LinkImpl(config string) []LinkItem { return t.LinkItems }

func (t *MemTarget) IncludeDirs(lang Language, config string) []string {
	return t.Includes[lang]
}

func (t *MemTarget) CompileFlags(lang Language, config string) []string {
	return t.Flags[lang]
}

func (t *MemTarget) Defines(lang Language, config string) []string {
	return t.DefineList[lang]
}

func (t *MemTarget) Feature(name, config string) (string, bool) {
	v, ok := t.Features[name]
	return v, ok
}

func (t *MemTarget) Property(name string) (string, bool) {
	v, ok := t.Properties[name]
	return v, ok
}

func (t *MemTarget) InstallGenerators() []InstallGen { return t.Installs }
func (t *MemTarget) PreBuildCommands() []CustomCommand  { return t.PreBuild }
func (t *MemTarget) PreLinkCommands() []CustomCommand   { return t.PreLink }
func (t *MemTarget) PostBuildCommands() []CustomCommand { return t.PostBuild }

func (t *MemTarget) SourceCommand(path string) (CustomCommand, bool) {
	c, ok := t.SourceCmds[path]
	return c, ok
}

func (t *MemTarget) PCHSource(config string, lang Language, arch string) (string, bool) {
	s, ok := t.PCHSources[string(lang)]
	return s, ok
}

func (t *MemTarget) PCHHeader(config string, lang Language, arch string) (string, bool) {
	h, ok := t.PCHHeaders[string(lang)]
	return h, ok
}

func (t *MemTarget) PCHFile(config string, lang Language, arch string) (string, bool) {
	f, ok := t.PCHFiles[string(lang)]
	return f, ok
}

func (t *MemTarget) PCHArchs(config string, lang Language) []string {
	return t.PCHArchList[string(lang)]
}
