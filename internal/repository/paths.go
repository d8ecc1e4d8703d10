package repository

import "path/filepath"

func dataPath(dataDir, name string) string {
	if dataDir == "" {
		dataDir = "."
	}
	return filepath.Join(dataDir, name)
}
