// Package validation checks generation requests against the chapter
// structure table and the configured narrator, translation and background
// catalogs before any job is created.
package validation

import (
	"fmt"
	"os"
	"path/filepath"

	"quran-video-service/internal/entity"
	"quran-video-service/internal/quran"
)

// Kind is the machine-readable classification of a validation failure.
type Kind string

const (
	KindInvalidChapter         Kind = "invalid_chapter"
	KindInvalidVerseRange      Kind = "invalid_verse_range"
	KindUnknownNarrator        Kind = "unknown_narrator"
	KindUnknownTranslation     Kind = "unknown_translation"
	KindUnknownBackground      Kind = "unknown_background"
	KindMissingBackgroundAsset Kind = "missing_background_asset"
	KindInvalidOutputName      Kind = "invalid_output_name"
)

// Error is a caller-fixable request rejection. Details carries the fields
// tests and clients assert on (requested vs allowed values).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

const maxOutputNameLen = 255

// Validator holds the allow-lists a request is checked against. It has no
// other state: identical input yields identical results.
type Validator struct {
	narrators      map[string]Narrator
	translations   map[string]Translation
	backgrounds    map[string]Background
	backgroundsDir string
}

func NewValidator(narrators map[string]Narrator, translations map[string]Translation, backgrounds map[string]Background, backgroundsDir string) *Validator {
	return &Validator{
		narrators:      narrators,
		translations:   translations,
		backgrounds:    backgrounds,
		backgroundsDir: backgroundsDir,
	}
}

// Validate runs the checks in a fixed order and stops at the first
// failure. On success the returned range is safe to process: the chapter
// exists and every verse in [start, end] exists within it.
func (v *Validator) Validate(req entity.GenerationRequest) (entity.VerseRange, error) {
	r := req.Range

	maxVerse, ok := quran.VerseCount(r.Chapter)
	if !ok {
		return entity.VerseRange{}, &Error{
			Kind:    KindInvalidChapter,
			Message: fmt.Sprintf("chapter %d does not exist, must be 1-%d", r.Chapter, quran.ChapterCount),
			Details: map[string]any{"chapter": r.Chapter},
		}
	}

	if r.StartVerse < 1 || r.EndVerse > maxVerse || r.StartVerse > r.EndVerse {
		return entity.VerseRange{}, &Error{
			Kind: KindInvalidVerseRange,
			Message: fmt.Sprintf("verses %d-%d are not a valid range for chapter %d (1-%d)",
				r.StartVerse, r.EndVerse, r.Chapter, maxVerse),
			Details: map[string]any{
				"chapter":       r.Chapter,
				"requested_end": r.EndVerse,
				"max_allowed":   maxVerse,
			},
		}
	}

	if _, ok := v.narrators[req.NarratorID]; !ok {
		return entity.VerseRange{}, &Error{
			Kind:    KindUnknownNarrator,
			Message: fmt.Sprintf("unknown narrator %q", req.NarratorID),
			Details: map[string]any{"provided": req.NarratorID, "allowed": sortedKeys(v.narrators)},
		}
	}

	if _, ok := v.translations[req.Translation]; !ok {
		return entity.VerseRange{}, &Error{
			Kind:    KindUnknownTranslation,
			Message: fmt.Sprintf("unknown translation %q", req.Translation),
			Details: map[string]any{"provided": req.Translation, "allowed": sortedKeys(v.translations)},
		}
	}

	bg, ok := v.backgrounds[req.Background]
	if !ok {
		return entity.VerseRange{}, &Error{
			Kind:    KindUnknownBackground,
			Message: fmt.Sprintf("unknown background %q", req.Background),
			Details: map[string]any{"provided": req.Background, "allowed": sortedKeys(v.backgrounds)},
		}
	}
	assetPath := filepath.Join(v.backgroundsDir, bg.FileName)
	if info, err := os.Stat(assetPath); err != nil || info.IsDir() {
		return entity.VerseRange{}, &Error{
			Kind:    KindMissingBackgroundAsset,
			Message: fmt.Sprintf("background asset for %q is not available", req.Background),
			Details: map[string]any{"background": req.Background, "path": assetPath},
		}
	}

	if req.OutputName != "" && !safeOutputName(req.OutputName) {
		return entity.VerseRange{}, &Error{
			Kind:    KindInvalidOutputName,
			Message: "output name may only contain letters, digits, '-' and '_'",
			Details: map[string]any{"output_name": req.OutputName},
		}
	}

	return r, nil
}

// BackgroundPath resolves a validated background id to its asset path.
func (v *Validator) BackgroundPath(id string) (string, bool) {
	bg, ok := v.backgrounds[id]
	if !ok {
		return "", false
	}
	return filepath.Join(v.backgroundsDir, bg.FileName), true
}

// Narrator resolves a validated narrator key.
func (v *Validator) Narrator(key string) (Narrator, bool) {
	n, ok := v.narrators[key]
	return n, ok
}

// Translation resolves a validated translation key.
func (v *Validator) Translation(key string) (Translation, bool) {
	t, ok := v.translations[key]
	return t, ok
}

func safeOutputName(name string) bool {
	if len(name) > maxOutputNameLen {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
