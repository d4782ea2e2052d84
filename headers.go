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
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/golang/glog"
)

// HeaderClassification is the exactly-one-of-five bucket a discovered
// header falls into.
type HeaderClassification int

const (
	HeaderProjectLocal HeaderClassification = iota
	HeaderWillBeGenerated
	HeaderConfigTimeGenerated
	HeaderExternal
	HeaderSystem
)

// maxHeaderDepth is the default recursion bound.
const maxHeaderDepth = 100

// includeRE is the regex fallback scanner used when the `-MM` invocation
// fails or yields nothing.
var includeRE = regexp.MustCompile(`^\s*#\s*include\s*["<]([^">]+)[">]`)

// HeaderResult is the classified transitive header set for one translation
// unit.
type HeaderResult struct {
	Existing        []string            // project-local, on disk -> fileset member
	Generated       []string            // project-local, will be produced by a custom command
	ConfigTime      []string            // configuration-time generated, embedded verbatim
	CommandProduced []string            // produced by a custom command, referenced as a build input
	ExternalByDir   map[string][]string // external headers, grouped by containing directory
}

// HeaderScanner performs recursive, memoized `-MM` based header
// discovery plus classification.
type HeaderScanner struct {
	Classifier           *PathClassifier
	Cache                *Cache
	CustomCommandOutputs map[string]bool // path -> produced by a custom command

	// runCompiler invokes the compiler for a -MM scan; overridable in tests
	// so they don't need a real toolchain on PATH.
	runCompiler func(compiler string, args []string) (string, error)
}

func NewHeaderScanner(classifier *PathClassifier, cache *Cache) *HeaderScanner {
	return &HeaderScanner{
		Classifier:           classifier,
		Cache:                cache,
		CustomCommandOutputs: make(map[string]bool),
		runCompiler:          runCompilerSubprocess,
	}
}

// runCompilerSubprocess invokes the compiler with argv only (never a shell
// wrapper), capturing stdout/stderr/exit code together.
func runCompilerSubprocess(compiler string, args []string) (string, error) {
	cmd := exec.Command(compiler, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), err
	}
	return string(out), nil
}

// Scan returns the full classification for sourcePath, compiled with flags
// under compilerCmd. depth 0 is sourcePath itself.
func (s *HeaderScanner) Scan(sourcePath, compilerCmd string, flags []string) (HeaderResult, error) {
	canon := canonicalize(sourcePath)
	visited := map[string]bool{canon: true}
	headers, err := s.transitive(sourcePath, compilerCmd, flags, visited, 0)
	if err != nil {
		return HeaderResult{}, err
	}
	return s.classify(headers), nil
}

func (s *HeaderScanner) transitive(path, compilerCmd string, flags []string, visited map[string]bool, depth int) ([]string, error) {
	if depth >= maxHeaderDepth {
		glog.Warningf("header scan: recursion depth limit (%d) reached at %s", maxHeaderDepth, path)
		return nil, nil
	}
	canon := canonicalize(path)
	direct, err := s.Cache.TransitiveHeaders(canon, func() ([]string, error) {
		return s.direct(path, compilerCmd, flags)
	})
	if err != nil {
		return nil, err
	}

	var all []string
	for _, h := range direct {
		hc := canonicalize(h)
		if visited[hc] {
			continue
		}
		visited[hc] = true
		all = append(all, h)
		if s.Classifier.IsSystem(h) {
			continue
		}
		sub, err := s.transitive(h, compilerCmd, nil, visited, depth+1)
		if err != nil {
			return nil, err
		}
		all = append(all, sub...)
	}
	return all, nil
}

// direct runs the -MM scan (falling back to the regex scanner) for one
// file, producing its immediate includes only.
func (s *HeaderScanner) direct(path, compilerCmd string, flags []string) ([]string, error) {
	args := append(append([]string{"-MM"}, flags...), path)
	out, err := s.runCompiler(compilerCmd, args)
	if err == nil {
		headers := parseMakeDepOutput(out)
		if len(headers) > 0 {
			return headers, nil
		}
	} else {
		glog.Warningf("header scan: -MM invocation failed for %s (%s %v): %v", path, compilerCmd, args, err)
	}
	return regexScanIncludes(path)
}

// parseMakeDepOutput parses `-MM` make-rule output: lines joined on a
// trailing backslash, tokens after the first colon are headers (the source
// itself is excluded).
func parseMakeDepOutput(out string) []string {
	joined := strings.ReplaceAll(out, "\\\n", " ")
	colon := strings.IndexByte(joined, ':')
	if colon < 0 {
		return nil
	}
	fields := strings.Fields(joined[colon+1:])
	if len(fields) <= 1 {
		return nil
	}
	// fields[0] is the source file itself.
	return fields[1:]
}

// regexScanIncludes is the fallback `#include` scanner.
func regexScanIncludes(path string) ([]string, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, nil // generated sources may not exist yet; not an error here
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if m := includeRE.FindStringSubmatch(line); m != nil {
			out = append(out, m[1])
		}
	}
	return out, nil
}

// classify buckets headers into the five categories.
func (s *HeaderScanner) classify(headers []string) HeaderResult {
	res := HeaderResult{ExternalByDir: make(map[string][]string)}
	seen := make(map[string]bool)
	for _, h := range headers {
		if seen[h] {
			continue
		}
		seen[h] = true
		switch s.classifyOne(h) {
		case HeaderSystem:
			// dropped: compiler finds it via the toolchain.
		case HeaderWillBeGenerated:
			res.CommandProduced = append(res.CommandProduced, h)
		case HeaderConfigTimeGenerated:
			res.ConfigTime = append(res.ConfigTime, h)
		case HeaderExternal:
			dir := filepath.Dir(h)
			res.ExternalByDir[dir] = append(res.ExternalByDir[dir], h)
		default: // HeaderProjectLocal
			if s.CustomCommandOutputs[h] {
				res.Generated = append(res.Generated, h)
			} else {
				res.Existing = append(res.Existing, h)
			}
		}
	}
	sort.Strings(res.Existing)
	sort.Strings(res.Generated)
	sort.Strings(res.ConfigTime)
	sort.Strings(res.CommandProduced)
	for dir := range res.ExternalByDir {
		sort.Strings(res.ExternalByDir[dir])
	}
	return res
}

func (s *HeaderScanner) classifyOne(h string) HeaderClassification {
	if s.Classifier.IsSystem(h) {
		return HeaderSystem
	}
	if s.CustomCommandOutputs[h] && !fileExists(h) {
		return HeaderWillBeGenerated
	}
	// The build root commonly nests inside the project root, so the
	// build-local test must come first. Relative header tokens are
	// project-relative by convention and never build-local.
	if filepath.IsAbs(h) && s.Classifier.IsBuildLocal(h) {
		return HeaderConfigTimeGenerated
	}
	if s.Classifier.IsProjectLocal(h) {
		return HeaderProjectLocal
	}
	return HeaderExternal
}

// canonicalize resolves symlinks before use as a cache key; this is
// security-critical (prevents symlink-based cache poisoning). Falls
// back to a cleaned path when the file doesn't exist (generated headers).
func canonicalize(path string) string {
	if resolved, err := evalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

// ExternalHeaderDerivation is one per-directory aggregation of external
// headers, keyed by each header's own containing directory, across every
// translation unit that consumes them.
type ExternalHeaderDerivation struct {
	Dir            string
	DerivationName string
	Headers        []string
}

// ExternalHeaderRegistry accumulates the union of external headers per
// containing directory across the whole generation pass. A directory's
// derivation name is committed on first sight so consuming translation
// units can declare the build-input reference before emission.
type ExternalHeaderRegistry struct {
	cache *Cache
	byDir map[string]map[string]bool
	names map[string]string
}

func NewExternalHeaderRegistry(cache *Cache) *ExternalHeaderRegistry {
	return &ExternalHeaderRegistry{
		cache: cache,
		byDir: make(map[string]map[string]bool),
		names: make(map[string]string),
	}
}

// Add records headers (already grouped by directory) as consumed by some
// translation unit.
func (r *ExternalHeaderRegistry) Add(byDir map[string][]string) {
	for dir, headers := range byDir {
		set, ok := r.byDir[dir]
		if !ok {
			set = make(map[string]bool)
			r.byDir[dir] = set
			r.names[dir] = r.cache.UniqueName("headers_" + filepath.Base(dir))
		}
		for _, h := range headers {
			set[h] = true
		}
	}
}

// NameFor returns the committed derivation name for dir, if any headers
// from dir have been registered.
func (r *ExternalHeaderRegistry) NameFor(dir string) (string, bool) {
	name, ok := r.names[dir]
	return name, ok
}

// Derivations returns one ExternalHeaderDerivation per directory, sorted by
// directory for deterministic emission order.
func (r *ExternalHeaderRegistry) Derivations() []ExternalHeaderDerivation {
	dirs := make([]string, 0, len(r.byDir))
	for dir := range r.byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	out := make([]ExternalHeaderDerivation, 0, len(dirs))
	for _, dir := range dirs {
		set := r.byDir[dir]
		headers := make([]string, 0, len(set))
		for h := range set {
			headers = append(headers, h)
		}
		sort.Strings(headers)
		out = append(out, ExternalHeaderDerivation{Dir: dir, DerivationName: r.names[dir], Headers: headers})
	}
	return out
}

// Emit writes one copy-preserving-structure derivation per external-header
// directory.
func (d ExternalHeaderDerivation) Emit(w *Writer) {
	w.line("%s = stdenv.mkDerivation {", d.DerivationName)
	w.indent++
	w.WriteAttrString("name", d.DerivationName)
	w.StartMultiline("buildCommand")
	w.WriteMultilineLine("mkdir -p $out" + d.Dir)
	for _, h := range d.Headers {
		w.WriteMultilineLine("cp " + quotedString(h) + " $out" + h)
	}
	w.EndMultiline()
	w.indent--
	w.line("};")
}
