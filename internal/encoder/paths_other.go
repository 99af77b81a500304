//go:build !windows

package encoder

const binaryName = "ffmpeg"

var commonInstallPaths = []string{
	"/usr/bin/ffmpeg",
	"/usr/local/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg",
	"/snap/bin/ffmpeg",
}
