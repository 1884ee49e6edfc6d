package validation_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"quran-video-service/internal/entity"
	"quran-video-service/internal/validation"
)

func newTestValidator(t *testing.T) *validation.Validator {
	t.Helper()

	dir := t.TempDir()
	for _, name := range []string{"nature.mp4", "calm_image.jpeg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return validation.NewValidator(
		validation.DefaultNarrators(),
		validation.DefaultTranslations(),
		validation.DefaultBackgrounds(),
		dir,
	)
}

func validRequest() entity.GenerationRequest {
	return entity.GenerationRequest{
		Range:       entity.VerseRange{Chapter: 1, StartVerse: 1, EndVerse: 7},
		NarratorID:  "mishary_alafasy",
		Translation: "en_sahih",
		Background:  "nature_video",
	}
}

func assertKind(t *testing.T, err error, want validation.Kind) *validation.Error {
	t.Helper()
	var verr *validation.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *validation.Error, got %v", err)
	}
	if verr.Kind != want {
		t.Fatalf("expected kind %s, got %s", want, verr.Kind)
	}
	return verr
}

func TestValidate_AcceptsFullChapterOne(t *testing.T) {
	v := newTestValidator(t)

	r, err := v.Validate(validRequest())
	if err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if r.Chapter != 1 || r.StartVerse != 1 || r.EndVerse != 7 {
		t.Fatalf("unexpected range: %+v", r)
	}
}

func TestValidate_RejectsChapterOutOfRange(t *testing.T) {
	v := newTestValidator(t)

	for _, chapter := range []int{0, -3, 115} {
		req := validRequest()
		req.Range.Chapter = chapter
		_, err := v.Validate(req)
		assertKind(t, err, validation.KindInvalidChapter)
	}
}

func TestValidate_RejectsEndVersePastChapterEnd(t *testing.T) {
	v := newTestValidator(t)

	req := validRequest()
	req.Range.EndVerse = 999

	_, err := v.Validate(req)
	verr := assertKind(t, err, validation.KindInvalidVerseRange)

	if verr.Details["chapter"] != 1 {
		t.Errorf("expected chapter=1 in details, got %v", verr.Details["chapter"])
	}
	if verr.Details["requested_end"] != 999 {
		t.Errorf("expected requested_end=999, got %v", verr.Details["requested_end"])
	}
	if verr.Details["max_allowed"] != 7 {
		t.Errorf("expected max_allowed=7, got %v", verr.Details["max_allowed"])
	}
}

func TestValidate_RejectsInvertedAndZeroRanges(t *testing.T) {
	v := newTestValidator(t)

	cases := []entity.VerseRange{
		{Chapter: 1, StartVerse: 5, EndVerse: 3},
		{Chapter: 1, StartVerse: 0, EndVerse: 3},
		{Chapter: 1, StartVerse: 8, EndVerse: 8},
	}
	for _, r := range cases {
		req := validRequest()
		req.Range = r
		_, err := v.Validate(req)
		assertKind(t, err, validation.KindInvalidVerseRange)
	}
}

func TestValidate_VerseBoundIsPerChapter(t *testing.T) {
	v := newTestValidator(t)

	// Verse 100 exists in chapter 2 (286 verses) but not in chapter 1.
	req := validRequest()
	req.Range = entity.VerseRange{Chapter: 2, StartVerse: 100, EndVerse: 100}
	if _, err := v.Validate(req); err != nil {
		t.Fatalf("expected 2:100 to be valid, got %v", err)
	}

	req.Range = entity.VerseRange{Chapter: 1, StartVerse: 1, EndVerse: 8}
	_, err := v.Validate(req)
	assertKind(t, err, validation.KindInvalidVerseRange)
}

func TestValidate_RejectsUnknownIdentifiers(t *testing.T) {
	v := newTestValidator(t)

	req := validRequest()
	req.NarratorID = "nobody"
	verr := assertKind(t, mustErr(t, v, req), validation.KindUnknownNarrator)
	if verr.Details["provided"] != "nobody" {
		t.Errorf("expected provided narrator in details, got %v", verr.Details)
	}

	req = validRequest()
	req.Translation = "xx_none"
	assertKind(t, mustErr(t, v, req), validation.KindUnknownTranslation)

	req = validRequest()
	req.Background = "void"
	assertKind(t, mustErr(t, v, req), validation.KindUnknownBackground)
}

func TestValidate_RejectsMissingBackgroundAsset(t *testing.T) {
	dir := t.TempDir() // no asset files created
	v := validation.NewValidator(
		validation.DefaultNarrators(),
		validation.DefaultTranslations(),
		validation.DefaultBackgrounds(),
		dir,
	)

	_, err := v.Validate(validRequest())
	assertKind(t, err, validation.KindMissingBackgroundAsset)
}

func TestValidate_OutputName(t *testing.T) {
	v := newTestValidator(t)

	req := validRequest()
	req.OutputName = "surah-1_full"
	if _, err := v.Validate(req); err != nil {
		t.Fatalf("expected valid output name, got %v", err)
	}

	for _, bad := range []string{"a/b", "a b", "..", "vid?", "vid*", "a\\b"} {
		req.OutputName = bad
		assertKind(t, mustErr(t, v, req), validation.KindInvalidOutputName)
	}
}

func TestValidate_ChecksShortCircuitInOrder(t *testing.T) {
	v := newTestValidator(t)

	// Bad chapter plus bad narrator: the chapter check wins.
	req := validRequest()
	req.Range.Chapter = 500
	req.NarratorID = "nobody"
	assertKind(t, mustErr(t, v, req), validation.KindInvalidChapter)

	// Bad range plus bad translation: the range check wins.
	req = validRequest()
	req.Range.EndVerse = 999
	req.Translation = "xx"
	assertKind(t, mustErr(t, v, req), validation.KindInvalidVerseRange)
}

func TestValidate_IsDeterministic(t *testing.T) {
	v := newTestValidator(t)
	req := validRequest()
	req.Range.EndVerse = 999

	first := mustErr(t, v, req)
	second := mustErr(t, v, req)
	if first.Error() != second.Error() {
		t.Fatalf("expected identical results, got %q and %q", first, second)
	}
}

func mustErr(t *testing.T, v *validation.Validator, req entity.GenerationRequest) error {
	t.Helper()
	_, err := v.Validate(req)
	if err == nil {
		t.Fatalf("expected validation error for %+v", req)
	}
	return err
}
