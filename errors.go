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
	"fmt"

	"github.com/golang/glog"
)

// Severity distinguishes fatal errors from warnings.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityFatal
)

// Diagnostic is a tagged result carried across component boundaries instead
// of exception-style control flow.
type Diagnostic struct {
	Severity Severity
	Target   string
	Message  string
}

func (d *Diagnostic) Error() string {
	if d.Target != "" {
		return fmt.Sprintf("%s: %s", d.Target, d.Message)
	}
	return d.Message
}

func warnf(target, format string, a ...interface{}) *Diagnostic {
	return &Diagnostic{Severity: SeverityWarning, Target: target, Message: fmt.Sprintf(format, a...)}
}

func fatalf(target, format string, a ...interface{}) *Diagnostic {
	return &Diagnostic{Severity: SeverityFatal, Target: target, Message: fmt.Sprintf(format, a...)}
}

// CycleError reports a dependency cycle.
type CycleError struct {
	Kind  string // "target" or "custom-command"
	Cycle []string
}

func (e *CycleError) Error() string {
	s := e.Kind + " dependency cycle: "
	for i, n := range e.Cycle {
		if i > 0 {
			s += " -> "
		}
		s += n
	}
	return s
}

// Diagnostics collects the warnings and fatal diagnostics produced during a
// generation pass (the generator's structured diagnostic channel).
type Diagnostics struct {
	items []*Diagnostic
}

func (d *Diagnostics) Add(diag *Diagnostic) {
	if diag == nil {
		return
	}
	d.items = append(d.items, diag)
	if diag.Severity == SeverityWarning {
		logWarn(diag.Target, diag.Message)
	} else {
		glog.Errorf("%s", diag.Error())
	}
}

func (d *Diagnostics) Items() []*Diagnostic { return d.items }

func (d *Diagnostics) HasFatal() bool {
	for _, i := range d.items {
		if i.Severity == SeverityFatal {
			return true
		}
	}
	return false
}
