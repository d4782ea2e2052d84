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

// DefaultConfig is the configuration used when a target specifies none
//.
const DefaultConfig = "Release"

// configFlags maps a configuration name to its compile-flag additions.
var configFlags = map[string][]string{
	"Release":        {"-O3", "-DNDEBUG"},
	"Debug":          {"-g", "-O0"},
	"RelWithDebInfo": {"-O2", "-g", "-DNDEBUG"},
	"MinSizeRel":     {"-Os", "-DNDEBUG"},
}

// ConfigFlags returns the compile flags contributed by config; unknown
// configuration names contribute no flags.
func ConfigFlags(config string) []string {
	if config == "" {
		config = DefaultConfig
	}
	return configFlags[config]
}

// EffectiveConfig resolves a target's configuration, defaulting to
// Release.
func EffectiveConfig(config string) string {
	if config == "" {
		return DefaultConfig
	}
	return config
}
