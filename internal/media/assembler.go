package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"quran-video-service/internal/entity"
)

// VerseClip is one downloaded narration clip awaiting concatenation.
type VerseClip struct {
	VerseNumber int
	Path        string
}

// Assembler concatenates per-verse narration clips into one continuous
// track and reports where each verse starts and ends on it.
type Assembler struct {
	runner commandRunner
}

func NewAssembler() *Assembler {
	return &Assembler{runner: execRunner{}}
}

// Assemble probes each clip for its duration, concatenates them in the
// given order and returns cumulative per-verse offsets in milliseconds.
func (a *Assembler) Assemble(ctx context.Context, clips []VerseClip, destPath string) (entity.AssembledAudio, error) {
	if len(clips) == 0 {
		return entity.AssembledAudio{}, &StageError{Stage: entity.StageAssembly, Msg: "no audio clips to assemble"}
	}

	offsets := make([]entity.VerseOffset, 0, len(clips))
	var cursor int64
	for _, clip := range clips {
		d, err := a.probeDurationMs(ctx, clip.Path)
		if err != nil {
			return entity.AssembledAudio{}, err
		}
		offsets = append(offsets, entity.VerseOffset{
			VerseNumber: clip.VerseNumber,
			StartMs:     cursor,
			EndMs:       cursor + d,
		})
		cursor += d
	}
	if cursor <= 0 {
		return entity.AssembledAudio{}, &StageError{Stage: entity.StageAssembly, Msg: "assembled track has zero duration"}
	}

	listPath := destPath + ".txt"
	if err := writeConcatList(listPath, clips); err != nil {
		return entity.AssembledAudio{}, &StageError{Stage: entity.StageAssembly, Msg: "write concat list", Err: err}
	}
	defer os.Remove(listPath)

	res, err := a.runner.Run(ctx, "ffmpeg",
		"-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", destPath)
	if err != nil {
		return entity.AssembledAudio{}, &StageError{
			Stage: entity.StageAssembly,
			Msg:   "ffmpeg concat failed: " + stderrTail(res.Stderr),
			Log:   CommandLog{Command: "ffmpeg", ExitCode: res.ExitCode, Stderr: stderrTail(res.Stderr)},
			Err:   err,
		}
	}

	return entity.AssembledAudio{FilePath: destPath, Offsets: offsets}, nil
}

func (a *Assembler) probeDurationMs(ctx context.Context, path string) (int64, error) {
	res, err := a.runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, &StageError{
			Stage: entity.StageAssembly,
			Msg:   fmt.Sprintf("ffprobe failed for %s", filepath.Base(path)),
			Log:   CommandLog{Command: "ffprobe", ExitCode: res.ExitCode, Stderr: stderrTail(res.Stderr)},
			Err:   err,
		}
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(res.Stdout), 64)
	if err != nil || seconds < 0 {
		return 0, &StageError{
			Stage: entity.StageAssembly,
			Msg:   fmt.Sprintf("unreadable duration for %s", filepath.Base(path)),
			Err:   err,
		}
	}
	return int64(math.Round(seconds * 1000)), nil
}

func writeConcatList(path string, clips []VerseClip) error {
	var b strings.Builder
	for _, clip := range clips {
		// concat demuxer single-quote escaping
		escaped := strings.ReplaceAll(clip.Path, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
