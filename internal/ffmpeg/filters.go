package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// Audio is resampled to one layout so the concat filter accepts every segment.
const (
	audioSampleRate = 48000
	audioLayout     = "stereo"
)

// formatSeconds renders seconds with millisecond precision and no trailing zeros.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(roundMillis(s), 'f', -1, 64)
}

func roundMillis(s float64) float64 {
	return float64(int64(s*1000+0.5)) / 1000
}

// inputArgs returns the -ss/-t/-i triplets, one input per segment.
func inputArgs(tl *timeline) []string {
	args := make([]string, 0, len(tl.segments)*6)
	for _, seg := range tl.segments {
		args = append(args,
			"-ss", formatSeconds(seg.start),
			"-t", formatSeconds(seg.Duration()),
			"-i", seg.src.Path(),
		)
	}
	return args
}

// buildFilterGraph returns the filter_complex for the timeline and whether
// it produces an audio output.
//
// Each segment's filters run on its own input. Segments smaller than the
// largest one are centered on a black canvas rather than scaled, then all
// of them are joined with the concat filter. When at least one segment has
// audio, silent segments get generated silence so the streams stay aligned;
// when none has audio the output has no audio stream.
func buildFilterGraph(tl *timeline, fps float64) (string, bool) {
	canvasW, canvasH := tl.canvas()
	withAudio := tl.HasAudio()
	rate := strconv.FormatFloat(fps, 'f', -1, 64)

	var chains []string
	var concatInputs strings.Builder

	for i, seg := range tl.segments {
		video := []string{"setpts=PTS-STARTPTS"}
		video = append(video, seg.videoFilters...)
		if seg.width != canvasW || seg.height != canvasH {
			video = append(video, fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black", canvasW, canvasH))
		}
		video = append(video, "setsar=1", "fps="+rate)
		chains = append(chains, fmt.Sprintf("[%d:v:0]%s[v%d]", i, strings.Join(video, ","), i))
		fmt.Fprintf(&concatInputs, "[v%d]", i)

		if !withAudio {
			continue
		}

		dur := formatSeconds(seg.Duration())
		if seg.HasAudio() {
			audio := []string{"asetpts=PTS-STARTPTS"}
			audio = append(audio, seg.audioFilters...)
			audio = append(audio,
				fmt.Sprintf("aformat=sample_rates=%d:channel_layouts=%s", audioSampleRate, audioLayout),
				"apad",
				"atrim=duration="+dur,
			)
			chains = append(chains, fmt.Sprintf("[%d:a:0]%s[a%d]", i, strings.Join(audio, ","), i))
		} else {
			chains = append(chains, fmt.Sprintf("anullsrc=channel_layout=%s:sample_rate=%d,atrim=duration=%s[a%d]",
				audioLayout, audioSampleRate, dur, i))
		}
		fmt.Fprintf(&concatInputs, "[a%d]", i)
	}

	n := len(tl.segments)
	if withAudio {
		chains = append(chains, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[outv][outa]", concatInputs.String(), n))
	} else {
		chains = append(chains, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[outv]", concatInputs.String(), n))
	}

	return strings.Join(chains, ";"), withAudio
}
