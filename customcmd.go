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
	"path/filepath"
	"sort"
	"strings"
)

// CustomCommandInfo is one collected custom command.
type CustomCommandInfo struct {
	PrimaryOutput  string
	TargetName     string
	WorkingDir     string
	CommandLines   [][]string
	Inputs         []string
	Outputs        []string
	DerivationName string
}

// CustomCommandHandler collects every target's pre-build/pre-link/post-
// build/per-source commands, builds their dependency DAG, detects cycles,
// and emits one derivation per command.
type CustomCommandHandler struct {
	cache     *Cache
	commands  []*CustomCommandInfo
	byOutput  map[string]*CustomCommandInfo // any declared output -> command
	byPrimary map[string]*CustomCommandInfo // primary output only, for dependency inference
}

func NewCustomCommandHandler(cache *Cache) *CustomCommandHandler {
	return &CustomCommandHandler{
		cache:     cache,
		byOutput:  make(map[string]*CustomCommandInfo),
		byPrimary: make(map[string]*CustomCommandInfo),
	}
}

// Collect walks every target in model, gathering its custom commands.
func (h *CustomCommandHandler) Collect(model Model) {
	for _, t := range model.Targets() {
		groups := [][]CustomCommand{t.PreBuildCommands(), t.PreLinkCommands(), t.PostBuildCommands()}
		for _, group := range groups {
			for _, cc := range group {
				h.add(t.Name(), cc)
			}
		}
		for _, src := range t.Sources("") {
			if cc, ok := t.SourceCommand(src.Path); ok {
				h.add(t.Name(), cc)
			}
		}
	}
}

func (h *CustomCommandHandler) add(targetName string, cc CustomCommand) {
	if cc.PrimaryOutput() == "" {
		return
	}
	info := &CustomCommandInfo{
		PrimaryOutput: cc.PrimaryOutput(),
		TargetName:    targetName,
		WorkingDir:    cc.WorkingDir,
		CommandLines:  cc.CommandLines,
		Inputs:        cc.Inputs,
		Outputs:       cc.Outputs,
		// Committed now so object derivations synthesized later can
		// reference the command before emission.
		DerivationName: h.cache.UniqueName("custom_" + cc.PrimaryOutput()),
	}
	h.commands = append(h.commands, info)
	h.byPrimary[info.PrimaryOutput] = info
	for _, o := range cc.Outputs {
		h.byOutput[o] = info
	}
}

// Commands returns every collected command, in collection order.
func (h *CustomCommandHandler) Commands() []*CustomCommandInfo { return h.commands }

// ProducerOf returns the command that produces path as one of its outputs,
// if any.
func (h *CustomCommandHandler) ProducerOf(path string) (*CustomCommandInfo, bool) {
	c, ok := h.byOutput[path]
	return c, ok
}

// TopoOrder detects cycles in the input->output command DAG and returns the
// commands in a dependency-first topological order ready for emission.
func (h *CustomCommandHandler) TopoOrder() ([]*CustomCommandInfo, error) {
	state := make(map[string]int) // 0 unvisited, 1 on-stack, 2 done
	var stack []string
	var order []*CustomCommandInfo

	var visit func(c *CustomCommandInfo) error
	visit = func(c *CustomCommandInfo) error {
		state[c.PrimaryOutput] = 1
		stack = append(stack, c.PrimaryOutput)
		for _, in := range c.Inputs {
			// Dependency inference keys on primary outputs; an input
			// matching the command's own primary output is a self-cycle.
			dep, ok := h.byPrimary[in]
			if !ok {
				continue
			}
			switch state[dep.PrimaryOutput] {
			case 1:
				start := 0
				for i, s := range stack {
					if s == dep.PrimaryOutput {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), dep.PrimaryOutput)
				return &CycleError{Kind: "custom-command", Cycle: cycle}
			case 0:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[c.PrimaryOutput] = 2
		order = append(order, c)
		return nil
	}

	sorted := append([]*CustomCommandInfo(nil), h.commands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PrimaryOutput < sorted[j].PrimaryOutput })

	for _, c := range sorted {
		if state[c.PrimaryOutput] == 0 {
			if err := visit(c); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// rewriteCMakeInvocation replaces an absolute path to a "cmake" binary in
// argv[0] with the unadorned name, since build rules frequently invoke it
// via "cmake -E ..." with a build-time-resolved absolute path.
func rewriteCMakeInvocation(argv []string) []string {
	if len(argv) == 0 {
		return argv
	}
	if filepath.Base(argv[0]) == "cmake" && filepath.IsAbs(argv[0]) {
		out := append([]string(nil), argv...)
		out[0] = "cmake"
		return out
	}
	return argv
}

// Emit writes one derivation per command, named "custom_<sanitized-first-
// output>". extraBuildInputs are additional package or derivation
// references (the compiler package, object/header-generating derivations
// the command's inputs resolve to).
func (c *CustomCommandInfo) Emit(w *Writer, extraBuildInputs []string) {
	buildInputs := append([]string{"cmake"}, extraBuildInputs...)

	w.line("%s = stdenv.mkDerivation {", c.DerivationName)
	w.indent++
	w.WriteAttrString("name", c.DerivationName)
	w.WriteAttrRaw("src", "./.")
	w.WriteAttrList("buildInputs", dedupe(buildInputs))
	w.StartMultiline("buildCommand")
	if c.WorkingDir != "" {
		w.WriteMultilineLine("cd " + shellQuote(c.WorkingDir))
	}
	for _, line := range c.CommandLines {
		rewritten := rewriteCMakeInvocation(line)
		w.WriteMultilineLine(shellJoin(rewritten))
	}
	for _, out := range c.Outputs {
		w.WriteMultilineLine("mkdir -p $out/" + filepath.Dir(out))
		w.WriteMultilineLine("cp " + shellQuote(out) + " $out/" + out)
	}
	w.EndMultiline()
	w.indent--
	w.line("};")
}

// shellQuote wraps s in single quotes for POSIX shell, escaping embedded
// single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func shellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if needsShellQuote(a) {
			parts[i] = shellQuote(a)
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}

func needsShellQuote(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.' || r == '/' || r == '=' || r == ':':
		default:
			return true
		}
	}
	return false
}
