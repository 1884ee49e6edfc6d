package media

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"quran-video-service/internal/entity"
)

// RenderInput carries everything the renderer needs for one job: fetched
// verse material, the concatenated narration track with offsets, and the
// background asset.
type RenderInput struct {
	Verses         []entity.VerseData
	Audio          entity.AssembledAudio
	BackgroundPath string
	OutputPath     string
}

// FFmpegRenderer burns word-timed subtitles over a looping background and
// muxes in the narration track.
type FFmpegRenderer struct {
	runner  commandRunner
	timeout time.Duration
}

type RendererOption func(*FFmpegRenderer)

// WithRenderTimeout bounds a single ffmpeg render invocation.
func WithRenderTimeout(d time.Duration) RendererOption {
	return func(r *FFmpegRenderer) { r.timeout = d }
}

func NewFFmpegRenderer(opts ...RendererOption) *FFmpegRenderer {
	r := &FFmpegRenderer{runner: execRunner{}, timeout: 10 * time.Minute}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render produces the final video at in.OutputPath. The subtitle file is
// generated next to the output and removed afterwards.
func (r *FFmpegRenderer) Render(ctx context.Context, in RenderInput) (string, error) {
	if len(in.Verses) == 0 || len(in.Audio.Offsets) == 0 {
		return "", &StageError{Stage: entity.StageRender, Msg: "nothing to render"}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	subPath := in.OutputPath + ".srt"
	if err := os.WriteFile(subPath, []byte(buildSubtitles(in.Verses, in.Audio.Offsets)), 0o644); err != nil {
		return "", &StageError{Stage: entity.StageRender, Msg: "write subtitles", Err: err}
	}
	defer os.Remove(subPath)

	res, err := r.runner.Run(ctx, "ffmpeg",
		"-y",
		"-stream_loop", "-1", "-i", in.BackgroundPath,
		"-i", in.Audio.FilePath,
		"-vf", "subtitles="+subPath,
		"-map", "0:v", "-map", "1:a",
		"-c:v", "libx264", "-c:a", "aac",
		"-shortest",
		in.OutputPath)
	if err != nil {
		return "", &StageError{
			Stage: entity.StageRender,
			Msg:   "ffmpeg render failed: " + stderrTail(res.Stderr),
			Log:   CommandLog{Command: "ffmpeg", ExitCode: res.ExitCode, Stderr: stderrTail(res.Stderr)},
			Err:   err,
		}
	}
	return in.OutputPath, nil
}

// buildSubtitles emits an SRT cue per word, shifted by the verse's offset
// on the assembled track, with the verse translation as a second line.
func buildSubtitles(verses []entity.VerseData, offsets []entity.VerseOffset) string {
	offsetByVerse := make(map[int]int64, len(offsets))
	for _, o := range offsets {
		offsetByVerse[o.VerseNumber] = o.StartMs
	}

	var b strings.Builder
	cue := 1
	for _, v := range verses {
		base := offsetByVerse[v.VerseNumber]
		for _, w := range v.WordTimings {
			fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n%s\n\n",
				cue,
				srtTimestamp(base+w.StartMs),
				srtTimestamp(base+w.EndMs),
				w.Token,
				v.Translation,
			)
			cue++
		}
	}
	return b.String()
}

func srtTimestamp(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}
