package stitch

import (
	"context"
	"fmt"

	"github.com/gwlsn/stitchray/internal/config"
	"github.com/gwlsn/stitchray/internal/media"
)

// rangeTolerance absorbs float noise between a probed duration and an end
// time that names it exactly.
const rangeTolerance = 0.001

// effectChain returns the effects for one snippet, in the order they apply.
// Scaling comes before fades so the fades work on uniform frames.
func effectChain(job *config.Job, snip config.Snippet, hasAudio bool) []media.Effect {
	var chain []media.Effect
	if job.OutputHeight > 0 {
		chain = append(chain, media.Resize(job.OutputHeight))
	}
	chain = append(chain, media.EvenSize())
	if job.NormalizeAudio && hasAudio {
		chain = append(chain, media.AudioNormalize())
	}
	if snip.FadeIn > 0 {
		chain = append(chain, media.FadeIn(snip.FadeIn))
	}
	if snip.FadeOut > 0 {
		chain = append(chain, media.FadeOut(snip.FadeOut))
	}
	return chain
}

// snippetRange resolves a snippet's bounds and checks them against the
// source duration.
func snippetRange(snip config.Snippet, duration float64) (start, end float64, ok bool, err error) {
	if start, err = snip.Start.Seconds(); err != nil {
		return 0, 0, false, err
	}
	if end, err = snip.End.Seconds(); err != nil {
		return 0, 0, false, err
	}
	// Written so NaN never passes.
	ok = start >= 0 && end > start && end <= duration+rangeTolerance
	return start, end, ok, nil
}

// extract cuts one snippet from src and runs it through the effect chain.
// It returns the processed clip and the effects applied to it.
func extract(ctx context.Context, engine media.Engine, src media.Source, job *config.Job, task, index int) (media.Clip, []media.EffectKind, error) {
	snip := job.VideoTasks[task].Snippets[index]

	start, end, ok, err := snippetRange(snip, src.Duration())
	if err != nil {
		return nil, nil, fmt.Errorf("task %d snippet %d: %w", task, index, err)
	}
	if !ok {
		return nil, nil, rangeError(task, index, start, end, src.Duration())
	}

	clip, err := engine.Subrange(src, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: task %d snippet %d: %w", ErrSnippetOutOfRange, task, index, err)
	}

	chain := effectChain(job, snip, clip.HasAudio())
	applied := make([]media.EffectKind, 0, len(chain))
	for _, effect := range chain {
		clip, err = engine.Apply(ctx, clip, effect)
		if err != nil {
			return nil, nil, renderError(fmt.Sprintf("task %d snippet %d: %s", task, index, effect), err)
		}
		applied = append(applied, effect.Kind)
	}
	return clip, applied, nil
}
