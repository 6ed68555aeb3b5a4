package util

import "os/exec"

// ResolveCommand returns the path of an external binary.
// If customPath is set, it must exist and be executable.
// Otherwise name is looked up in the system PATH.
// Returns an empty string if the binary is not found.
func ResolveCommand(customPath, name string) string {
	if customPath != "" {
		if _, err := exec.LookPath(customPath); err == nil {
			return customPath
		}
		return ""
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}
