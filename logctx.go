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
	"os"
	"time"

	"github.com/golang/glog"
)

// debugFlag/profileFlag/profileDetailedFlag mirror the NIX_DEBUG,
// NIX_PROFILE and NIX_PROFILE_DETAILED environment variables,
// read once at package init so the hot per-derivation loops only pay a
// boolean check.
var (
	debugFlag           = os.Getenv("NIX_DEBUG") == "1"
	profileFlag         = os.Getenv("NIX_PROFILE") == "1"
	profileDetailedFlag = os.Getenv("NIX_PROFILE_DETAILED") == "1"
)

func logDebugf(format string, a ...interface{}) {
	if !debugFlag {
		glog.V(2).Infof(format, a...)
		return
	}
	fmt.Printf("[NIX-DEBUG] "+format+"\n", a...)
}

func logWarn(target, message string) {
	if target != "" {
		glog.Warningf("%s: %s", target, message)
		return
	}
	glog.Warning(message)
}

// profileSpan times one named phase, printing NIX-PROFILE lines when
// NIX_PROFILE=1. Call the returned func when the phase ends.
func profileSpan(phase string) func() {
	if !profileFlag {
		return func() {}
	}
	start := time.Now()
	fmt.Printf("[NIX-PROFILE] START %s\n", phase)
	return func() {
		fmt.Printf("[NIX-PROFILE] END %s (duration: %dms)\n", phase, time.Since(start).Milliseconds())
	}
}

// profileDetailed times a hot-loop sub-phase, only when
// NIX_PROFILE_DETAILED=1 is also set (per-object, per-library-lookup timers).
func profileDetailed(phase string) func() {
	if !profileFlag || !profileDetailedFlag {
		return func() {}
	}
	return profileSpan(phase)
}
