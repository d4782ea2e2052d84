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

// PackageInfo is the resolved Nix package name and extra link flags for an
// imported target or raw library.
type PackageInfo struct {
	Package   string
	LinkFlags []string
}

// importedTargetTable is the static CMake-imported-target -> Nix mapping
//. Unknown names are not present and callers fall back to
// treating the link item as a raw library.
var importedTargetTable = map[string]PackageInfo{
	"Threads::Threads":   {Package: "", LinkFlags: []string{"-lpthread"}}, // built into the compiler
	"ZLIB::ZLIB":         {Package: "zlib", LinkFlags: []string{"-lz"}},
	"OpenGL::GL":         {Package: "libGL", LinkFlags: []string{"-lGL"}},
	"OpenGL::GLU":        {Package: "libGLU", LinkFlags: []string{"-lGLU"}},
	"GLUT::GLUT":         {Package: "freeglut", LinkFlags: []string{"-lglut"}},
	"X11::X11":           {Package: "xorg.libX11", LinkFlags: []string{"-lX11"}},
	"PNG::PNG":           {Package: "libpng", LinkFlags: []string{"-lpng"}},
	"JPEG::JPEG":         {Package: "libjpeg", LinkFlags: []string{"-ljpeg"}},
	"CURL::libcurl":      {Package: "curl", LinkFlags: []string{"-lcurl"}},
	"OpenSSL::SSL":       {Package: "openssl", LinkFlags: []string{"-lssl"}},
	"OpenSSL::Crypto":    {Package: "openssl", LinkFlags: []string{"-lcrypto"}},
	"BZip2::BZip2":       {Package: "bzip2", LinkFlags: []string{"-lbz2"}},
	"LibXml2::LibXml2":   {Package: "libxml2", LinkFlags: []string{"-lxml2"}},
	"SQLite::SQLite3":    {Package: "sqlite", LinkFlags: []string{"-lsqlite3"}},
	"Boost::boost":       {Package: "boost"}, // header-only umbrella target
	"Boost::filesystem":  {Package: "boost", LinkFlags: []string{"-lboost_filesystem"}},
	"Boost::system":      {Package: "boost", LinkFlags: []string{"-lboost_system"}},
	"Boost::thread":      {Package: "boost", LinkFlags: []string{"-lboost_thread"}},
	"PkgConfig::pkgconf": {Package: "pkg-config"},
	"unofficial::nlohmann_json::nlohmann_json": {Package: "nlohmann_json"}, // header-only
}

// rawLibraryTable maps a handful of well-known raw library names (as they'd
// appear via `-l<name>` or a bare CMake target_link_libraries argument) to
// the Nix package that provides them. Anything absent falls back to a bare
// "-l<name>" with no package dependency.
var rawLibraryTable = map[string]PackageInfo{
	"m":       {Package: ""}, // libc provides it via the compiler
	"dl":      {Package: ""},
	"pthread": {Package: "", LinkFlags: []string{"-lpthread"}},
	"ssl":     {Package: "openssl"},
	"crypto":  {Package: "openssl"},
	"z":       {Package: "zlib"},
	"curl":    {Package: "curl"},
	"sqlite3": {Package: "sqlite"},
}

// ResolveImportedTarget looks up a CMake-style imported target name
// (e.g. "ZLIB::ZLIB").
func ResolveImportedTarget(name string) (PackageInfo, bool) {
	info, ok := importedTargetTable[name]
	return info, ok
}

// ResolveRawLibrary looks up a raw library name for an associated package,
// used purely to populate build inputs (the link flag itself is always
// "-l<name>" regardless of whether a package is found).
func ResolveRawLibrary(name string) (PackageInfo, bool) {
	info, ok := rawLibraryTable[name]
	return info, ok
}
