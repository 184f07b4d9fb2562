package core

import "path/filepath"

// ResolvePathFromSuite resolves a path referenced by a suite file.
// If the provided path is already absolute, it's returned as is.
// If it's relative, it's joined with the suiteDir to create an absolute path.
func ResolvePathFromSuite(suiteDir, pathFromYAML string) string {
	if filepath.IsAbs(pathFromYAML) {
		return pathFromYAML
	}
	return filepath.Join(suiteDir, pathFromYAML)
}
