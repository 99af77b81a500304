package encoder

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrEncoderNotFound means no ffmpeg binary could be located. Fatal for
// session start; there is nothing to degrade to.
var ErrEncoderNotFound = errors.New("ffmpeg binary not found")

// Discover locates the ffmpeg executable for callers that need to know
// availability before starting a session.
func Discover(override string) (string, error) {
	return discoverBinary(override)
}

// discoverBinary locates the ffmpeg executable. Search order: explicit
// config override, alongside our own executable (bundled deployments), the
// system PATH, then well-known install locations.
func discoverBinary(override string) (string, error) {
	if override != "" {
		if fileExists(override) {
			return override, nil
		}
		return "", ErrEncoderNotFound
	}

	if exe, err := os.Executable(); err == nil {
		bundled := filepath.Join(filepath.Dir(exe), binaryName)
		if fileExists(bundled) {
			return bundled, nil
		}
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path, nil
	}

	for _, p := range commonInstallPaths {
		if fileExists(p) {
			return p, nil
		}
	}
	return "", ErrEncoderNotFound
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
