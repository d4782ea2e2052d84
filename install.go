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

// InstallDerivation is one "<target>_install" derivation.
type InstallDerivation struct {
	DerivationName string
	TargetName     string
	LinkName       string
	Destination    string
}

// defaultDestination maps a target kind to its default install destination
// when a generator doesn't
// name one explicitly.
func defaultDestination(kind TargetKind) string {
	if kind == Executable {
		return "bin"
	}
	return "lib"
}

// SynthesizeInstall builds the install derivation for target, if it has any
// install generators. The destination of the first generator wins;
// DESTINATION generator-expression resolution is the front-end's concern,
// so the string is used as given.
func SynthesizeInstall(target Target, ld *LinkDerivation) (*InstallDerivation, bool) {
	gens := target.InstallGenerators()
	if len(gens) == 0 {
		return nil, false
	}
	dest := gens[0].Destination
	if dest == "" {
		dest = defaultDestination(target.Kind())
	}
	return &InstallDerivation{
		DerivationName: ld.DerivationName + "_install",
		TargetName:     target.Name(),
		LinkName:       ld.DerivationName,
		Destination:    dest,
	}, true
}

// Emit writes the install-copy derivation: a source of the link output,
// whose install phase copies $out's contents into the shell-escaped
// destination.
func (id *InstallDerivation) Emit(w *Writer) {
	w.line("%s = stdenv.mkDerivation {", id.DerivationName)
	w.indent++
	w.WriteAttrString("name", id.DerivationName)
	w.WriteAttrRaw("src", "${"+id.LinkName+"}")
	w.StartMultiline("installPhase")
	w.WriteMultilineLine("mkdir -p $out/" + shellQuote(id.Destination))
	w.WriteMultilineLine("cp -r $src/. $out/" + shellQuote(id.Destination) + "/")
	w.EndMultiline()
	w.indent--
	w.line("};")
}
