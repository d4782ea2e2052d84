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
	"bytes"
	"fmt"
	"os"

	"github.com/golang/glog"
)

// cmakeNixCCPrelude and cmakeNixLDPrelude are the two shared helper
// functions written once at the top of every generated file and consumed by
// every object/link derivation.
const cmakeNixCCPrelude = `cmakeNixCC = { name, src, source, compiler ? gcc, flags ? "", buildInputs ? [] }:
  stdenv.mkDerivation {
    inherit name src buildInputs;
    dontFixup = true;
    buildCommand = ''
      ${compiler}/bin/${compiler.pname or "cc"} -c ${source} -o $out ${flags}
    '';
  };
`

const cmakeNixLDPrelude = `cmakeNixLD = { name, type ? "executable", objects, compiler ? gcc,
                 compilerCommand ? null, flags ? "", libraries ? [],
                 buildInputs ? [], version ? null, soversion ? null,
                 postBuildPhase ? "" }:
  let
    cc = if compilerCommand != null then compilerCommand else "cc";
  in
  stdenv.mkDerivation {
    inherit name buildInputs;
    dontFixup = true;
    buildCommand =
      (if type == "static" then ''
        ar rcs $out ${toString objects}
      '' else if type == "shared" || type == "module" then ''
        ${compiler}/bin/${cc} -shared -o $out ${toString objects} ${toString libraries} ${flags}
        ${lib.optionalString (version != null && soversion != null) ''
          ln -s $out $out.so.${soversion}
        ''}
      '' else ''
        ${compiler}/bin/${cc} -o $out ${toString objects} ${toString libraries} ${flags}
      '') + postBuildPhase;
  };
`

// Driver runs the full generation pipeline: it writes the helper prelude
// into the generated text, invokes the header resolver, object synthesizer,
// custom-command handler, link synthesizer and install emitter in the
// fixed order, then writes the top-level attribute set.
type Driver struct {
	Model  Model
	Config DriverConfig
	Cache  *Cache
	Diags  Diagnostics
}

// DriverConfig holds the tunables the cmd/ front-end wires from flags/env:
// system-path prefixes, the explicit-sources toggle, cross-compilation, and
// the try-compile probe-directory test. Cache bounds and the header
// recursion depth are package constants, not configurable here.
type DriverConfig struct {
	SystemPrefixes  []string
	ExplicitSources bool
	CrossCompiling  bool
	BuildDirIsProbe func(string) bool
}

func NewDriver(model Model, cfg DriverConfig) *Driver {
	return &Driver{Model: model, Config: cfg, Cache: NewCache()}
}

// Generate runs the full pipeline and returns the generated `default.nix`
// text. It never writes to disk itself; rewriting the output file only
// when its contents changed is the caller's concern, see WriteIfChanged.
func (d *Driver) Generate() (string, error) {
	done := profileSpan("generate")
	defer done()

	classifier := NewPathClassifier(d.Model.ProjectRoot(), d.Model.BuildRoot())
	if len(d.Config.SystemPrefixes) > 0 {
		classifier.SystemPrefixes = d.Config.SystemPrefixes
	}

	CheckExternalProjectUsage(d.Model, &d.Diags)

	resolver := NewCompilerResolver(d.Config.CrossCompiling)
	extHeaders := NewExternalHeaderRegistry(d.Cache)
	customCmds := NewCustomCommandHandler(d.Cache)
	customCmds.Collect(d.Model)

	scanner := NewHeaderScanner(classifier, d.Cache)
	for _, c := range customCmds.Commands() {
		for _, o := range c.Outputs {
			scanner.CustomCommandOutputs[o] = true
		}
	}

	pchReg := NewPCHRegistry()
	objSynth := &ObjectSynth{
		Cache:           d.Cache,
		Classifier:      classifier,
		Resolver:        resolver,
		Scanner:         scanner,
		ExtHeaders:      extHeaders,
		CustomCmds:      customCmds,
		PCH:             pchReg,
		ExplicitSources: d.Config.ExplicitSources,
	}

	graph := NewDependencyGraph()
	for _, t := range d.Model.Targets() {
		graph.AddTarget(t.Name(), t.Kind())
	}
	for _, t := range d.Model.Targets() {
		for _, item := range t.LinkImpl(DefaultConfig) {
			if item.Kind == LinkInternalTarget {
				graph.AddEdge(t.Name(), item.Name)
			}
		}
	}
	if cycle, found := graph.HasCycle(); found {
		return "", &CycleError{Kind: "target", Cycle: cycle}
	}

	linkSynth := NewLinkSynth(d.Cache, graph, resolver)
	linkSynth.IsTryCompileProbe = func(dir string) bool {
		if d.Config.BuildDirIsProbe == nil {
			return false
		}
		return d.Config.BuildDirIsProbe(dir)
	}
	linkSynth.BuildDir = d.Model.BuildRoot()

	// objectOutputs maps an object-file path as a traditional build would
	// produce it to the derivation that produces it here; custom commands
	// that consume object files reference it.
	objectOutputs := make(map[string]string)

	var pchDerivs []*PCHDerivation
	var objectDerivs []*ObjectDerivation
	for _, t := range d.Model.Targets() {
		configDone := profileDetailed("target:" + t.Name())

		// PCH creation derivations come first so the target's own sources
		// can reference them (and so PCH sources skip object synthesis).
		pchs := objSynth.SynthesizePCH(t, DefaultConfig)
		pchReg.Add(t.Name(), pchs)
		pchDerivs = append(pchDerivs, pchs...)

		var ods []*ObjectDerivation
		for _, src := range t.Sources(DefaultConfig) {
			if pchReg.IsPCHSource(t.Name(), src.Path) {
				continue
			}
			od, err := objSynth.Synthesize(t, src, DefaultConfig, &d.Diags)
			if err != nil {
				configDone()
				return "", err
			}
			ods = append(ods, od)
			objectDerivs = append(objectDerivs, od)
			objectOutputs[od.ObjectFileName] = od.DerivationName
		}
		linkSynth.ObjectsOf[t.Name()] = ods
		if t.Kind() == ObjectLibrary {
			for _, od := range ods {
				linkSynth.ObjLibOwner[od.SourcePath] = t.Name()
				linkSynth.ObjLibOwner[od.ObjectFileName] = t.Name()
			}
		}
		configDone()
	}

	cmdOrder, err := customCmds.TopoOrder()
	if err != nil {
		return "", err
	}

	var links []*LinkDerivation
	var installs []*InstallDerivation
	for _, t := range d.Model.Targets() {
		ld, err := linkSynth.Synthesize(t, DefaultConfig, &d.Diags)
		if err != nil {
			return "", err
		}
		links = append(links, ld)
		if id, ok := SynthesizeInstall(t, ld); ok {
			installs = append(installs, id)
		}
	}

	if d.Diags.HasFatal() {
		return "", fmt.Errorf("generation aborted: %d fatal diagnostic(s)", len(d.Diags.Items()))
	}

	return d.render(resolver, customCmds, objectOutputs, extHeaders, pchDerivs, objectDerivs, cmdOrder, links, installs), nil
}

// render writes every component's output in the fixed pipeline order into one
// buffer via the emitter.
func (d *Driver) render(resolver *CompilerResolver, handler *CustomCommandHandler, objectOutputs map[string]string, extHeaders *ExternalHeaderRegistry, pchs []*PCHDerivation, objects []*ObjectDerivation, cmds []*CustomCommandInfo, links []*LinkDerivation, installs []*InstallDerivation) string {
	w := NewWriter()
	w.WriteComment("Generated")
	w.raw("with import <nixpkgs> {};\n")
	w.raw("with pkgs;\n")
	w.raw("with lib;\n")
	w.StartLet()
	w.raw(cmakeNixCCPrelude)
	w.raw(cmakeNixLDPrelude)

	for _, ehd := range extHeaders.Derivations() {
		ehd.Emit(w)
	}
	for _, p := range pchs {
		p.Emit(w)
	}
	for _, od := range objects {
		od.Emit(w)
	}
	compilerPkg := resolver.Resolve(LangC).Package
	for _, c := range cmds {
		extra := []string{compilerPkg}
		for _, in := range c.Inputs {
			if name, ok := objectOutputs[in]; ok {
				extra = append(extra, name)
			}
			if dep, ok := handler.ProducerOf(in); ok && dep != c {
				extra = append(extra, dep.DerivationName)
			}
		}
		c.Emit(w, extra)
	}
	for _, ld := range links {
		ld.Emit(w)
	}
	for _, id := range installs {
		id.Emit(w)
	}

	w.EndLet()

	w.StartAttrSet("")
	// Top-level attributes keep the front-end's target order; links is
	// already in d.Model.Targets() order.
	for _, ld := range links {
		if ld.Kind == ObjectLibrary {
			continue
		}
		w.WriteAttrRaw(quotedString(ld.TargetName), ld.DerivationName)
	}
	for _, id := range installs {
		w.WriteAttrRaw(quotedString(id.TargetName+"_install"), id.DerivationName)
	}
	w.EndAttrSet(false)

	return w.String()
}

// WriteIfChanged writes content to path only if the existing file (if any)
// has different bytes.
func WriteIfChanged(path, content string) error {
	if existing, err := readFile(path); err == nil && bytes.Equal(existing, []byte(content)) {
		glog.V(1).Infof("driver: %s unchanged, not rewriting", path)
		return nil
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
