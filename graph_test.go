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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(g *DependencyGraph) {
	g.AddTarget("app", Executable)
	g.AddTarget("a", StaticLibrary)
	g.AddTarget("b", StaticLibrary)
	g.AddTarget("c", StaticLibrary)
	g.AddEdge("app", "a")
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
}

func TestDependencyGraphStaticLinkOrder(t *testing.T) {
	g := NewDependencyGraph()
	buildChain(g)

	order, err := g.TopologicalOrderForLinking("app")
	require.NoError(t, err)

	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["a"], pos["b"], "a depends on b, must precede it")
	assert.Less(t, pos["b"], pos["c"], "b depends on c, must precede it")
}

func TestDependencyGraphNoCycle(t *testing.T) {
	g := NewDependencyGraph()
	buildChain(g)
	_, found := g.HasCycle()
	assert.False(t, found)
}

func TestDependencyGraphDetectsCycle(t *testing.T) {
	g := NewDependencyGraph()
	g.AddTarget("a", StaticLibrary)
	g.AddTarget("b", StaticLibrary)
	g.AddTarget("c", StaticLibrary)
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")

	cycle, found := g.HasCycle()
	require.True(t, found)
	assert.Contains(t, cycle, "a")
	assert.Contains(t, cycle, "b")
	assert.Contains(t, cycle, "c")

	_, err := g.TopologicalOrderForLinking("a")
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, "target", cycleErr.Kind)
}

func TestDependencyGraphTransitiveSharedLibs(t *testing.T) {
	g := NewDependencyGraph()
	g.AddTarget("app", Executable)
	g.AddTarget("libshared", SharedLibrary)
	g.AddTarget("libstatic", StaticLibrary)
	g.AddEdge("app", "libstatic")
	g.AddEdge("libstatic", "libshared")

	shared := g.TransitiveSharedLibs("app")
	assert.Equal(t, []string{"libshared"}, shared)

	all := g.AllTransitive("app")
	assert.ElementsMatch(t, []string{"libstatic", "libshared"}, all)
}

func TestDependencyGraphTransitiveSharedLibsMemoized(t *testing.T) {
	g := NewDependencyGraph()
	g.AddTarget("app", Executable)
	g.AddTarget("libshared", SharedLibrary)
	g.AddEdge("app", "libshared")

	first := g.TransitiveSharedLibs("app")
	second := g.TransitiveSharedLibs("app")
	assert.Equal(t, first, second)
}
