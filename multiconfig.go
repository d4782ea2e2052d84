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

import "fmt"

// MultiConfigSuffix returns the name suffix a multi-config replica of a
// derivation gets for config. The Driver's single-config path never calls
// this and never consults Model.Configs(); MultiConfigVariant applies it.
func MultiConfigSuffix(config string) string {
	return "_" + SanitizeIdentifier(config)
}

// MultiConfigVariant replicates object and link synthesis once per
// configuration, suffixing every derivation name it produces so the
// families don't collide in the shared `let` block. Install derivations
// are not replicated per configuration.
//
// This assumes a target's Sources(config) result is identical across
// configurations; per-configuration source divergence is unsupported, and
// this type documents rather than detects that assumption.
type MultiConfigVariant struct {
	ObjectSynth *ObjectSynth
	LinkSynth   *LinkSynth
}

// SynthesizeAll runs object and link synthesis for target once per config in
// configs, returning one LinkDerivation per configuration alongside the
// object derivations it references. The caller emits each family under its
// own suffixed names; SynthesizeAll itself does not write anything.
func (v *MultiConfigVariant) SynthesizeAll(target Target, configs []string, diags *Diagnostics) (map[string]*LinkDerivation, map[string][]*ObjectDerivation, error) {
	links := make(map[string]*LinkDerivation, len(configs))
	objects := make(map[string][]*ObjectDerivation, len(configs))

	for _, config := range configs {
		suffix := MultiConfigSuffix(config)
		var ods []*ObjectDerivation
		for _, src := range target.Sources(config) {
			od, err := v.ObjectSynth.Synthesize(target, src, config, diags)
			if err != nil {
				return nil, nil, fmt.Errorf("config %s: %w", config, err)
			}
			od.DerivationName += suffix
			ods = append(ods, od)
		}
		objects[config] = ods
		v.LinkSynth.ObjectsOf[target.Name()] = ods

		ld, err := v.LinkSynth.Synthesize(target, config, diags)
		if err != nil {
			return nil, nil, fmt.Errorf("config %s: %w", config, err)
		}
		ld.DerivationName += suffix
		links[config] = ld
	}

	return links, objects, nil
}
