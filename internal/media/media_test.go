package media

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"quran-video-service/internal/entity"
)

type fakeRunner struct {
	calls     [][]string
	durations map[string]string // clip path -> ffprobe stdout
	failOn    string            // command name that should fail
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if name == f.failOn {
		return commandResult{Stderr: "boom", ExitCode: 1}, errors.New("exit status 1")
	}
	if name == "ffprobe" {
		path := args[len(args)-1]
		out, ok := f.durations[path]
		if !ok {
			return commandResult{Stderr: "no such file", ExitCode: 1}, errors.New("exit status 1")
		}
		return commandResult{Stdout: out}, nil
	}
	return commandResult{}, nil
}

func TestAssemble_CumulativeOffsets(t *testing.T) {
	dir := t.TempDir()
	clips := []VerseClip{
		{VerseNumber: 1, Path: filepath.Join(dir, "verse-1.mp3")},
		{VerseNumber: 2, Path: filepath.Join(dir, "verse-2.mp3")},
		{VerseNumber: 3, Path: filepath.Join(dir, "verse-3.mp3")},
	}
	runner := &fakeRunner{durations: map[string]string{
		clips[0].Path: "2.500\n",
		clips[1].Path: "1.250\n",
		clips[2].Path: "3.000\n",
	}}
	a := &Assembler{runner: runner}

	out, err := a.Assemble(context.Background(), clips, filepath.Join(dir, "track.mp3"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []entity.VerseOffset{
		{VerseNumber: 1, StartMs: 0, EndMs: 2500},
		{VerseNumber: 2, StartMs: 2500, EndMs: 3750},
		{VerseNumber: 3, StartMs: 3750, EndMs: 6750},
	}
	if len(out.Offsets) != len(want) {
		t.Fatalf("expected %d offsets, got %d", len(want), len(out.Offsets))
	}
	for i, w := range want {
		if out.Offsets[i] != w {
			t.Errorf("offset %d: expected %+v, got %+v", i, w, out.Offsets[i])
		}
	}

	last := runner.calls[len(runner.calls)-1]
	if last[0] != "ffmpeg" || !contains(last, "concat") {
		t.Errorf("expected final ffmpeg concat call, got %v", last)
	}
}

func TestAssemble_EmptyClipList(t *testing.T) {
	a := &Assembler{runner: &fakeRunner{}}
	_, err := a.Assemble(context.Background(), nil, "out.mp3")
	assertStage(t, err, entity.StageAssembly)
}

func TestAssemble_ConcatFailure(t *testing.T) {
	dir := t.TempDir()
	clip := VerseClip{VerseNumber: 1, Path: filepath.Join(dir, "verse-1.mp3")}
	runner := &fakeRunner{
		durations: map[string]string{clip.Path: "1.0"},
		failOn:    "ffmpeg",
	}
	a := &Assembler{runner: runner}

	_, err := a.Assemble(context.Background(), []VerseClip{clip}, filepath.Join(dir, "track.mp3"))
	serr := assertStage(t, err, entity.StageAssembly)
	if serr.Log.ExitCode != 1 {
		t.Errorf("expected exit code 1 in log, got %d", serr.Log.ExitCode)
	}
}

func TestRender_BuildsExpectedCommand(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	r := &FFmpegRenderer{runner: runner}

	in := RenderInput{
		Verses: []entity.VerseData{{
			VerseNumber: 1,
			ArabicText:  "text",
			Translation: "translation",
			WordTimings: []entity.WordTiming{{Token: "w", StartMs: 0, EndMs: 500}},
		}},
		Audio: entity.AssembledAudio{
			FilePath: filepath.Join(dir, "track.mp3"),
			Offsets:  []entity.VerseOffset{{VerseNumber: 1, StartMs: 0, EndMs: 500}},
		},
		BackgroundPath: filepath.Join(dir, "bg.mp4"),
		OutputPath:     filepath.Join(dir, "out.mp4"),
	}
	out, err := r.Render(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != in.OutputPath {
		t.Errorf("expected output %s, got %s", in.OutputPath, out)
	}

	call := runner.calls[0]
	for _, wantArg := range []string{"-shortest", "libx264", "aac", in.BackgroundPath, in.Audio.FilePath, in.OutputPath} {
		if !contains(call, wantArg) {
			t.Errorf("expected arg %q in %v", wantArg, call)
		}
	}
}

func TestRender_FFmpegFailure(t *testing.T) {
	dir := t.TempDir()
	r := &FFmpegRenderer{runner: &fakeRunner{failOn: "ffmpeg"}}

	in := RenderInput{
		Verses: []entity.VerseData{{
			VerseNumber: 1,
			WordTimings: []entity.WordTiming{{Token: "w", StartMs: 0, EndMs: 500}},
		}},
		Audio: entity.AssembledAudio{
			FilePath: filepath.Join(dir, "track.mp3"),
			Offsets:  []entity.VerseOffset{{VerseNumber: 1, StartMs: 0, EndMs: 500}},
		},
		BackgroundPath: filepath.Join(dir, "bg.mp4"),
		OutputPath:     filepath.Join(dir, "out.mp4"),
	}
	_, err := r.Render(context.Background(), in)
	serr := assertStage(t, err, entity.StageRender)
	if !strings.Contains(serr.Msg, "boom") {
		t.Errorf("expected stderr tail in message, got %q", serr.Msg)
	}
}

func TestBuildSubtitles_ShiftsByVerseOffset(t *testing.T) {
	verses := []entity.VerseData{
		{VerseNumber: 1, Translation: "first", WordTimings: []entity.WordTiming{{Token: "a", StartMs: 0, EndMs: 1000}}},
		{VerseNumber: 2, Translation: "second", WordTimings: []entity.WordTiming{{Token: "b", StartMs: 0, EndMs: 2000}}},
	}
	offsets := []entity.VerseOffset{
		{VerseNumber: 1, StartMs: 0, EndMs: 1000},
		{VerseNumber: 2, StartMs: 1000, EndMs: 3000},
	}
	srt := buildSubtitles(verses, offsets)

	if !strings.Contains(srt, "00:00:00,000 --> 00:00:01,000") {
		t.Errorf("missing first cue timing:\n%s", srt)
	}
	// verse 2's word starts at its own 0ms but 1000ms on the track
	if !strings.Contains(srt, "00:00:01,000 --> 00:00:03,000") {
		t.Errorf("missing shifted second cue timing:\n%s", srt)
	}
	if !strings.Contains(srt, "second") {
		t.Errorf("missing translation line:\n%s", srt)
	}
}

func TestSrtTimestamp(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{0, "00:00:00,000"},
		{1500, "00:00:01,500"},
		{61250, "00:01:01,250"},
		{3_600_000, "01:00:00,000"},
	}
	for _, c := range cases {
		if got := srtTimestamp(c.ms); got != c.want {
			t.Errorf("srtTimestamp(%d): expected %s, got %s", c.ms, c.want, got)
		}
	}
}

func assertStage(t *testing.T, err error, want entity.Stage) *StageError {
	t.Helper()
	var serr *StageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *StageError, got %v", err)
	}
	if serr.Stage != want {
		t.Fatalf("expected stage %s, got %s", want, serr.Stage)
	}
	return serr
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want || strings.Contains(a, want) {
			return true
		}
	}
	return false
}
