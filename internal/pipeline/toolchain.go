// SPDX-License-Identifier: AGPL-3.0-or-later
package pipeline

import (
	"sort"
	"strconv"
)

// CMake renders the command lines of the external build tool. It never runs
// anything itself.
type CMake struct {
	Program string
}

func (c CMake) program() string {
	if c.Program == "" {
		return "cmake"
	}
	return c.Program
}

// Clean removes the build-type directory and nothing above it.
func (c CMake) Clean(bc *BuildContext) []string {
	return []string{c.program(), "-E", "rm", "-rf", bc.BuildDir}
}

// Configure generates the build tree for bc.
func (c CMake) Configure(bc *BuildContext) []string {
	defines := map[string]string{
		"CMAKE_BUILD_TYPE":              bc.BuildType,
		"CMAKE_EXPORT_COMPILE_COMMANDS": "1",
	}
	if bc.TargetOS != "" {
		defines["FORGOTTEN_OS"] = bc.TargetOS
	}
	if bc.Linker != "" {
		defines["USE_ALTERNATE_LINKER"] = bc.Linker
	}

	args := []string{c.program(), "-S", bc.Root, "-B", bc.BuildDir, "-G", bc.Generator}
	args = append(args, definesArgs(defines)...)
	return append(args, bc.ConfigureArgs...)
}

// Build compiles the tree; it is run from inside the build directory.
func (c CMake) Build(bc *BuildContext) []string {
	args := []string{c.program(), "--build", ".", "--parallel", strconv.Itoa(bc.Parallel)}
	if multiConfig(bc.Generator) {
		args = append(args, "--config", bc.BuildType)
	}
	return args
}

func (c CMake) Symlink(target, link string) []string {
	return []string{c.program(), "-E", "create_symlink", target, link}
}

func (c CMake) CopyDir(src, dst string) []string {
	return []string{c.program(), "-E", "copy_directory", src, dst}
}

func (c CMake) CopyFile(src, dstDir string) []string {
	return []string{c.program(), "-E", "copy", src, dstDir}
}

func definesArgs(defines map[string]string) []string {
	keys := make([]string, 0, len(defines))
	for k := range defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, "-D"+k+"="+defines[k])
	}
	return args
}
