package ffmpeg

import (
	"strconv"

	"github.com/gwlsn/stitchray/internal/media"
)

// BuildOutputArgs returns the encoder arguments for the final render.
// Empty codec, pixel format and profile fields fall back to the fixed
// defaults from the media package.
func BuildOutputArgs(params media.RenderParams, withAudio bool) []string {
	videoCodec := orDefault(params.VideoCodec, media.VideoCodec)
	pixFmt := orDefault(params.PixelFormat, media.PixelFormat)
	profile := orDefault(params.Profile, media.Profile)

	args := []string{"-c:v", videoCodec}
	if params.Preset != "" {
		args = append(args, "-preset", params.Preset)
	}
	if params.Bitrate != "" {
		args = append(args, "-b:v", params.Bitrate)
	}
	args = append(args,
		"-pix_fmt", pixFmt,
		"-profile:v", profile,
	)
	if params.FPS > 0 {
		args = append(args, "-r", strconv.FormatFloat(params.FPS, 'f', -1, 64))
	}
	args = append(args, "-threads", strconv.Itoa(max(params.Threads, 0)))

	if withAudio {
		args = append(args, "-c:a", orDefault(params.AudioCodec, media.AudioCodec))
	} else {
		args = append(args, "-an")
	}

	// Put the index up front so the file starts playing before it is fully read.
	args = append(args, "-movflags", "+faststart")
	return args
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
