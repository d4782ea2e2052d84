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
	"strconv"
	"sync"
)

// Bounds for the three caches.
const (
	derivationNameCacheBound = 10000
	libraryDepsCacheBound    = 1000
	headerCacheBound         = 10000
)

type derivNameKey struct{ target, source string }
type libDepsKey struct{ target, config string }

// Cache is the bounded, thread-safe memoization manager. Each of
// the three tables is guarded by the same mutex as the uniqueness set
// (mark-used/is-used); locks are never held across a caller-supplied
// compute function (the compute-once protocol below): check under lock,
// unlock, compute, relock, recheck, insert.
type Cache struct {
	mu sync.Mutex

	derivNames map[derivNameKey]string
	libDeps    map[libDepsKey][]string
	headers    map[string][]string
	used       map[string]bool
}

func NewCache() *Cache {
	return &Cache{
		derivNames: make(map[derivNameKey]string),
		libDeps:    make(map[libDepsKey][]string),
		headers:    make(map[string][]string),
		used:       make(map[string]bool),
	}
}

// evictHalf removes roughly half of m's entries once it has grown past
// bound; the manager does not need LRU precision.
func evictHalf[K comparable, V any](m map[K]V, bound int) {
	if len(m) <= bound {
		return
	}
	n := len(m) / 2
	for k := range m {
		delete(m, k)
		n--
		if n <= 0 {
			break
		}
	}
}

// DerivationName returns the cached derivation name for (target, source),
// computing it via compute on a miss.
func (c *Cache) DerivationName(target, source string, compute func() (string, error)) (string, error) {
	key := derivNameKey{target, source}
	c.mu.Lock()
	if v, ok := c.derivNames[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := compute()
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.derivNames[key]; ok {
		return existing, nil
	}
	evictHalf(c.derivNames, derivationNameCacheBound)
	c.derivNames[key] = v
	return v, nil
}

// LibraryDeps returns the cached ordered library/file-reference list for
// (target, config).
func (c *Cache) LibraryDeps(target, config string, compute func() ([]string, error)) ([]string, error) {
	key := libDepsKey{target, config}
	c.mu.Lock()
	if v, ok := c.libDeps[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := compute()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.libDeps[key]; ok {
		return existing, nil
	}
	evictHalf(c.libDeps, libraryDepsCacheBound)
	c.libDeps[key] = v
	return v, nil
}

// TransitiveHeaders returns the cached header list for a canonicalized
// source path.
func (c *Cache) TransitiveHeaders(canonicalPath string, compute func() ([]string, error)) ([]string, error) {
	c.mu.Lock()
	if v, ok := c.headers[canonicalPath]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := compute()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.headers[canonicalPath]; ok {
		return existing, nil
	}
	evictHalf(c.headers, headerCacheBound)
	c.headers[canonicalPath] = v
	return v, nil
}

// MarkUsed / IsUsed support the derivation-name uniqueness protocol: a sanitized name is checked against IsUsed and, if
// taken, retried with a "_2", "_3", … suffix before being committed with
// MarkUsed.
func (c *Cache) MarkUsed(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used[name] = true
}

func (c *Cache) IsUsed(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used[name]
}

// UniqueName sanitizes base and, on collision, appends "_2", "_3", … until
// an unused name is found, then commits it via MarkUsed.
func (c *Cache) UniqueName(base string) string {
	name := SanitizeIdentifier(base)
	candidate := name
	for i := 2; c.IsUsed(candidate); i++ {
		candidate = sanitizedSuffix(name, i)
	}
	c.MarkUsed(candidate)
	return candidate
}

func sanitizedSuffix(base string, n int) string {
	return base + "_" + strconv.Itoa(n)
}
