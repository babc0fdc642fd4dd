package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// readWorkingDirFile reads path relative to workingDir for the
// read_instruction_file tool. An absolute path, or one that escapes
// workingDir via "..", is rejected: the orchestrator agent may only read
// project-local instruction files.
func readWorkingDirFile(workingDir, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be relative to the working directory, got %q", path)
	}
	full := filepath.Join(workingDir, path)
	rel, err := filepath.Rel(workingDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working directory", path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
