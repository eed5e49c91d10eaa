package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteVersionFiles is the Version File Writer (spec §4.J): it writes the
// index's version name as plain text to both of its sidecar file paths
// under rootPath, creating parent directories as needed.
func WriteVersionFiles(idx Index, rootPath string) error {
	version := []byte(idx.VersionName())

	for _, name := range []string{idx.VersionFileVer(), idx.VersionFileBck()} {
		full := filepath.Join(rootPath, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("create parent directory for %s: %w", full, err)
		}
		if err := os.WriteFile(full, version, 0o644); err != nil {
			return fmt.Errorf("write version file %s: %w", full, err)
		}
	}
	return nil
}
