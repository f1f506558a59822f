package testdb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ProjectRootEnvVar overrides project root detection.
const ProjectRootEnvVar = "APPTEST_PROJECT_ROOT"

// ErrProjectRootNotFound is returned when no go.mod is found above the
// working directory.
var ErrProjectRootNotFound = errors.New("project root not found")

// FindProjectRoot returns the directory holding the module's go.mod. It
// honors ProjectRootEnvVar, then walks up from the working directory.
func FindProjectRoot() (string, error) {
	if root := os.Getenv(ProjectRootEnvVar); root != "" {
		if isProjectRoot(root) {
			return root, nil
		}
		slog.Warn("project root override has no go.mod",
			slog.String("env", ProjectRootEnvVar),
			slog.String("path", root))
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	for {
		if isProjectRoot(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrProjectRootNotFound
		}
		dir = parent
	}
}

// Path joins elems onto the project root.
func Path(elems ...string) (string, error) {
	root, err := FindProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{root}, elems...)...), nil
}

func isProjectRoot(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "go.mod"))
	return err == nil && !info.IsDir()
}
