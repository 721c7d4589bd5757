// Package media defines the contract between the stitching pipeline and the
// engine that decodes, filters and encodes video.
package media

import (
	"context"
	"fmt"
)

// Clip is a time-bounded, possibly filtered view of a source.
type Clip interface {
	// Duration returns the clip length in seconds.
	Duration() float64
	// HasAudio reports whether the clip carries an audio track.
	HasAudio() bool
}

// Source is an opened media file. It must be closed once every clip derived
// from it has been rendered.
type Source interface {
	Clip
	Path() string
	Close() error
}

// Engine is the media-processing collaborator.
type Engine interface {
	Open(ctx context.Context, path string) (Source, error)
	Subrange(clip Clip, start, end float64) (Clip, error)
	Apply(ctx context.Context, clip Clip, effect Effect) (Clip, error)
	Concatenate(clips []Clip) (Clip, error)
	Encode(ctx context.Context, clip Clip, outputPath string, params RenderParams) error
}

// EffectKind identifies a transformation.
type EffectKind string

const (
	EffectResize         EffectKind = "resize"
	EffectEvenSize       EffectKind = "even_size"
	EffectAudioNormalize EffectKind = "audio_normalize"
	EffectFadeIn         EffectKind = "fade_in"
	EffectFadeOut        EffectKind = "fade_out"
)

// Effect is a single transformation applied to a clip.
type Effect struct {
	Kind     EffectKind
	Height   int     // target height for EffectResize
	Duration float64 // seconds, for fades
}

// Resize scales to height pixels, keeping the aspect ratio.
func Resize(height int) Effect {
	return Effect{Kind: EffectResize, Height: height}
}

// EvenSize trims each dimension down to an even number of pixels.
func EvenSize() Effect {
	return Effect{Kind: EffectEvenSize}
}

// AudioNormalize raises the audio so its peak reaches full scale.
func AudioNormalize() Effect {
	return Effect{Kind: EffectAudioNormalize}
}

// FadeIn fades from black over d seconds at the start of the clip.
func FadeIn(d float64) Effect {
	return Effect{Kind: EffectFadeIn, Duration: d}
}

// FadeOut fades to black over d seconds at the end of the clip.
func FadeOut(d float64) Effect {
	return Effect{Kind: EffectFadeOut, Duration: d}
}

func (e Effect) String() string {
	switch e.Kind {
	case EffectResize:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Height)
	case EffectFadeIn, EffectFadeOut:
		return fmt.Sprintf("%s(%gs)", e.Kind, e.Duration)
	default:
		return string(e.Kind)
	}
}

// Fixed output stream settings. 4:2:0 chroma and the high profile play back
// nearly everywhere.
const (
	VideoCodec  = "libx264"
	AudioCodec  = "aac"
	PixelFormat = "yuv420p"
	Profile     = "high"
)

// RenderParams are the encoder settings for the final output.
type RenderParams struct {
	FPS         float64
	VideoCodec  string
	AudioCodec  string
	PixelFormat string
	Profile     string
	Bitrate     string
	Preset      string
	Threads     int // 0 = encoder decides
}

// NewRenderParams returns params with the fixed codec, pixel format and
// profile filled in.
func NewRenderParams(fps float64, bitrate, preset string, threads int) RenderParams {
	return RenderParams{
		FPS:         fps,
		VideoCodec:  VideoCodec,
		AudioCodec:  AudioCodec,
		PixelFormat: PixelFormat,
		Profile:     Profile,
		Bitrate:     bitrate,
		Preset:      preset,
		Threads:     threads,
	}
}
