package encoder

import (
	"fmt"
	"strconv"
)

// realtimeArgs builds the command line for the live encoding pass: raw BGRA
// frames over stdin into an H.264 elementary file. The preset is always
// veryfast regardless of the quality tier; keeping real-time pace matters
// more here than compression ratio, and the tier's CRF still governs quality.
// Odd input dimensions are padded up to even, which libx264 requires.
func realtimeArgs(width, height, fps, crf int, videoPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "bgra",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", strconv.Itoa(fps),
		"-i", "pipe:0",
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-y", videoPath,
	}
}

// muxArgs builds the finalize pass: copy the already-encoded video stream,
// encode the sidecar WAV to AAC, trim to the shorter stream.
func muxArgs(videoPath, wavPath, destPath, audioBitrate string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-i", wavPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-shortest",
		"-movflags", "+faststart",
		"-y", destPath,
	}
}
