package utils

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ResolveBinaryPath finds a binary, checking PATH and then common npm
// global install locations. It returns an error when nothing is found.
func ResolveBinaryPath(binaryPath string) (string, error) {
	if binaryPath == "" {
		return "", fmt.Errorf("binary name is empty")
	}

	// If it's an absolute path, it must exist
	if filepath.IsAbs(binaryPath) {
		if FileExists(binaryPath) {
			return binaryPath, nil
		}
		return "", fmt.Errorf("%s does not exist", binaryPath)
	}

	// Handle tilde prefix
	if strings.HasPrefix(binaryPath, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			expanded := filepath.Join(home, binaryPath[1:])
			if FileExists(expanded) {
				return expanded, nil
			}
		}
	}

	if path, err := exec.LookPath(binaryPath); err == nil {
		return path, nil
	}

	name := filepath.Base(binaryPath)
	var commonPaths []string
	if home, err := os.UserHomeDir(); err == nil {
		commonPaths = append(commonPaths,
			filepath.Join(home, ".npm-global", "bin", name),
			filepath.Join(home, ".local", "bin", name),
		)
	}
	commonPaths = append(commonPaths,
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/opt/homebrew/bin", name),
	)

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH", name)
}
