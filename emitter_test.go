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
)

func TestSanitizeIdentifier(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"dot", "my.target", "my_target"},
		{"leading digit", "3rdparty", "_3rdparty"},
		{"reserved word", "let", "_let"},
		{"reserved word in", "in", "_in"},
		{"non-ascii", "café", "caf_"},
		{"dash preserved", "my-target", "my-target"},
		{"underscore preserved", "my_target", "my_target"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, SanitizeIdentifier(c.in))
		})
	}
}

func TestEscapeNixString(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"quote", `a"b`, `a\"b`},
		{"backslash", `a\b`, `a\\b`},
		{"newline", "a\nb", `a\nb`},
		{"dollar", "a$b", `a\$b`},
		{"backtick", "a`b", "a\\`b"},
		{"tab", "a\tb", `a\tb`},
		{"plain", "abc", "abc"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, EscapeNixString(c.in))
		})
	}
}

func TestEscapeNixMultiline(t *testing.T) {
	assert.Equal(t, `''\''`, EscapeNixMultiline("''"))
	assert.Equal(t, "no quotes here", EscapeNixMultiline("no quotes here"))
	assert.Equal(t, "${keep}", EscapeNixMultiline("${keep}"))
}

func TestWriterAttrSetRoundTrip(t *testing.T) {
	w := NewWriter()
	w.StartAttrSet("foo")
	w.WriteAttrString("name", `has "quotes"`)
	w.WriteAttrBool("flag", true)
	w.WriteAttrInt("count", 3)
	w.WriteAttrList("items", []string{"a", "b"})
	w.EndAttrSet(true)

	out := w.String()
	assert.Contains(t, out, `foo = {`)
	assert.Contains(t, out, `name = "has \"quotes\"";`)
	assert.Contains(t, out, `flag = true;`)
	assert.Contains(t, out, `count = 3;`)
	assert.Contains(t, out, `items = [ a b ];`)
	assert.Contains(t, out, `};`)
}

func TestWriteFilesetUnionSortsAndMarksMaybeMissing(t *testing.T) {
	w := NewWriter()
	w.WriteFilesetUnion("src", "./.", []string{"./b.c", "./a.c"}, map[string]bool{"./b.c": true})
	out := w.String()

	aIdx := indexOf(out, "./a.c")
	bIdx := indexOf(out, "maybeMissing ./b.c")
	assert.GreaterOrEqual(t, aIdx, 0)
	assert.GreaterOrEqual(t, bIdx, 0)
	assert.Less(t, aIdx, bIdx, "paths must be emitted in sorted order")
}
