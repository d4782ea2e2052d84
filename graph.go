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

import "sync"

type graphNode struct {
	name string
	kind TargetKind
	deps []string
}

// DependencyGraph is the target-dependency graph: nodes are target
// names, edges point from a target to each target it directly links
// against.
type DependencyGraph struct {
	mu    sync.Mutex
	nodes map[string]*graphNode
	order []string // insertion order, for deterministic iteration

	transSharedCache map[string][]string
	transAllCache    map[string][]string
}

func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:            make(map[string]*graphNode),
		transSharedCache: make(map[string][]string),
		transAllCache:    make(map[string][]string),
	}
}

func (g *DependencyGraph) AddTarget(name string, kind TargetKind) {
	if _, ok := g.nodes[name]; ok {
		return
	}
	g.nodes[name] = &graphNode{name: name, kind: kind}
	g.order = append(g.order, name)
}

func (g *DependencyGraph) AddEdge(from, to string) {
	n, ok := g.nodes[from]
	if !ok {
		return
	}
	n.deps = append(n.deps, to)
}

// HasCycle runs a DFS with a recursion-stack set over every node, returning
// the first cycle found.
func (g *DependencyGraph) HasCycle() (cycle []string, found bool) {
	state := make(map[string]int) // 0=unvisited 1=on-stack 2=done
	var stack []string

	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = 1
		stack = append(stack, name)
		if n, ok := g.nodes[name]; ok {
			for _, d := range n.deps {
				switch state[d] {
				case 1:
					// found the back-edge; trim stack to the cycle.
					start := 0
					for i, s := range stack {
						if s == d {
							start = i
							break
						}
					}
					cycle = append(append([]string{}, stack[start:]...), d)
					return true
				case 0:
					if visit(d) {
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = 2
		return false
	}

	for _, name := range g.order {
		if state[name] == 0 {
			if visit(name) {
				return cycle, true
			}
		}
	}
	return nil, false
}

// TopologicalOrderForLinking returns the nodes reachable from target in
// reverse post-order: target first, and every node before the libraries it
// depends on (app -> a -> b -> c yields app, a, b, c), the order a static
// link line needs.
func (g *DependencyGraph) TopologicalOrderForLinking(target string) ([]string, error) {
	if cycle, found := g.HasCycle(); found {
		return nil, &CycleError{Kind: "target", Cycle: cycle}
	}
	visited := make(map[string]bool)
	var post []string
	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		if n, ok := g.nodes[name]; ok {
			for _, d := range n.deps {
				visit(d)
			}
		}
		post = append(post, name)
	}
	visit(target)
	// post is already dependency-first (post-order of a DFS from target);
	// reverse it to get reverse-post-order semantics relative to target.
	reversed := make([]string, len(post))
	for i, n := range post {
		reversed[len(post)-1-i] = n
	}
	return reversed, nil
}

// TransitiveSharedLibs returns reachable nodes whose kind is shared-library
// or module-library, excluding target itself. Memoized per node.
func (g *DependencyGraph) TransitiveSharedLibs(target string) []string {
	g.mu.Lock()
	if v, ok := g.transSharedCache[target]; ok {
		g.mu.Unlock()
		return v
	}
	g.mu.Unlock()

	visited := map[string]bool{target: true}
	var out []string
	var visit func(name string)
	visit = func(name string) {
		n, ok := g.nodes[name]
		if !ok {
			return
		}
		for _, d := range n.deps {
			if visited[d] {
				continue
			}
			visited[d] = true
			if dn := g.nodes[d]; dn != nil && (dn.kind == SharedLibrary || dn.kind == ModuleLibrary) {
				out = append(out, d)
			}
			visit(d)
		}
	}
	visit(target)

	g.mu.Lock()
	g.transSharedCache[target] = out
	g.mu.Unlock()
	return out
}

// AllTransitive returns reachable nodes regardless of kind. Memoized.
func (g *DependencyGraph) AllTransitive(target string) []string {
	g.mu.Lock()
	if v, ok := g.transAllCache[target]; ok {
		g.mu.Unlock()
		return v
	}
	g.mu.Unlock()

	visited := map[string]bool{target: true}
	var out []string
	var visit func(name string)
	visit = func(name string) {
		n, ok := g.nodes[name]
		if !ok {
			return
		}
		for _, d := range n.deps {
			if visited[d] {
				continue
			}
			visited[d] = true
			out = append(out, d)
			visit(d)
		}
	}
	visit(target)

	g.mu.Lock()
	g.transAllCache[target] = out
	g.mu.Unlock()
	return out
}

// Kind returns the recorded kind for a target name, if known.
func (g *DependencyGraph) Kind(name string) (TargetKind, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return 0, false
	}
	return n.kind, true
}
