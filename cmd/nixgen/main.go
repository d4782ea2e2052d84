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

// Command nixgen is the outer CLI wrapping the nixgen library. It reads a
// target-model fixture and drives the generator; the real CMake
// configure-time front-end is not part of this repository.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cmake-nix/nixgen"
)

var (
	modelPath       string
	outPath         string
	explicitSources bool
	crossCompiling  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "nixgen",
		Short:        "Translate a resolved build-target model into a Nix derivation graph",
		SilenceUsage: true,
	}
	root.AddCommand(newGenerateCmd(), newQueryCmd())
	return root
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Read a target-model fixture and write default.nix",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := loadModel(modelPath)
			if err != nil {
				return fmt.Errorf("loading model: %w", err)
			}

			driver := nixgen.NewDriver(model, nixgen.DriverConfig{
				ExplicitSources: explicitSources,
				CrossCompiling:  crossCompiling,
			})

			out, err := driver.Generate()
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			for _, d := range driver.Diags.Items() {
				fmt.Fprintln(os.Stderr, d.Error())
			}
			if err := nixgen.WriteIfChanged(outPath, out); err != nil {
				return fmt.Errorf("writing %s: %w", outPath, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "testdata/model.yaml", "path to a target-model YAML fixture")
	cmd.Flags().StringVar(&outPath, "out", "default.nix", "output path for the generated Nix expression")
	cmd.Flags().BoolVar(&explicitSources, "explicit-sources", false, "NIX_EXPLICIT_SOURCES: perform full transitive header scanning and emit minimal filesets")
	cmd.Flags().BoolVar(&crossCompiling, "cross", false, "append -cross to resolved compiler package names")
	return cmd
}

func newQueryCmd() *cobra.Command {
	var lang string
	var cross bool
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the resolved compiler package/command for a language",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := nixgen.NewCompilerResolver(cross)
			info := resolver.Resolve(nixgen.Language(lang))
			fmt.Printf("package=%s command=%s\n", info.Package, info.Command)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "CXX", "source language (C, CXX, Fortran, CUDA, Swift, ASM, ASM-ATT, ASM_NASM, ASM_MASM)")
	cmd.Flags().BoolVar(&cross, "cross", false, "append -cross to the resolved package name")
	return cmd
}

// loadModel reads a YAML target-model fixture into a *nixgen.MemModel,
// standing in for the out-of-scope CMake configure-time front-end.
func loadModel(path string) (*nixgen.MemModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var model nixgen.MemModel
	if err := yaml.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	return &model, nil
}
