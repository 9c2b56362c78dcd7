package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
)

// WorkDirEnv overrides the detected project root, ie: for binaries deployed next to their assets.
const WorkDirEnv = "CONGRESS_WORKDIR"

// CleanString trims `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		s = strings.ToLower(s)
	}
	return s
}

// Getwd returns the project root: $CONGRESS_WORKDIR, else the closest parent holding go.mod
// (tests run from their package directory), else the working directory.
func Getwd() string {
	if dir := os.Getenv(WorkDirEnv); dir != "" {
		return dir
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("core.Getwd: %v", err)
	}
	for dir := wd; ; {
		if fi, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil && !fi.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return wd
		}
		dir = parent
	}
}
