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

// externalProjectModules are the source-time fetching modules that defeat
// Nix's content-addressed caching when used from a build script.
var externalProjectModules = map[string]bool{
	"ExternalProject_Add": true,
	"FetchContent":        true,
	"FetchContent_Declare": true,
	"FetchContent_MakeAvailable": true,
}

// CheckExternalProjectUsage warns when model reports any source-time
// fetching module in use, naming the offending module. It never fails
// generation.
func CheckExternalProjectUsage(model Model, diags *Diagnostics) {
	user, ok := model.(ExternalModuleUser)
	if !ok {
		return
	}
	for _, m := range user.UsedModules() {
		if externalProjectModules[m] {
			diags.Add(warnf("", "build scripts use %q, a source-time fetching module; "+
				"this generator works from an already-resolved target model and cannot "+
				"reproduce network fetches inside the Nix sandbox - vendor the fetched "+
				"sources or replace %q with a Nix-fetched input before configuring", m, m))
		}
	}
}
