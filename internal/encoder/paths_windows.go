//go:build windows

package encoder

const binaryName = "ffmpeg.exe"

var commonInstallPaths = []string{
	`C:\ffmpeg\bin\ffmpeg.exe`,
	`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
	`C:\Program Files (x86)\ffmpeg\bin\ffmpeg.exe`,
	`C:\ProgramData\chocolatey\bin\ffmpeg.exe`,
}
