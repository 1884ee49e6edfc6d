// Package gateway wraps the three external data sources a render job
// depends on: verse text with word timings, translation text, and
// narration audio. Every call returns a typed UpstreamError on failure.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"quran-video-service/internal/entity"
)

const (
	DefaultVerseBaseURL       = "https://api.quran.com/api/v4"
	DefaultTranslationBaseURL = "https://api.alquran.cloud/v1"
	DefaultAudioBaseURL       = "https://verses.quran.com/"
)

type Client struct {
	httpClient         *http.Client
	verseBaseURL       string
	translationBaseURL string
	audioBaseURL       string
	fetchTimeout       time.Duration
	downloadTimeout    time.Duration
}

type Option func(*Client)

func WithBaseURLs(verse, translation, audio string) Option {
	return func(c *Client) {
		c.verseBaseURL = verse
		c.translationBaseURL = translation
		c.audioBaseURL = audio
	}
}

func WithTimeouts(fetch, download time.Duration) Option {
	return func(c *Client) {
		c.fetchTimeout = fetch
		c.downloadTimeout = download
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:         &http.Client{},
		verseBaseURL:       DefaultVerseBaseURL,
		translationBaseURL: DefaultTranslationBaseURL,
		audioBaseURL:       DefaultAudioBaseURL,
		fetchTimeout:       30 * time.Second,
		downloadTimeout:    60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// verse payload shapes for api.quran.com
type versePayload struct {
	Verse *struct {
		TextUthmani string `json:"text_uthmani"`
		Words       []struct {
			TextUthmani   string `json:"text_uthmani"`
			TimestampFrom *int64 `json:"timestamp_from"`
			TimestampTo   *int64 `json:"timestamp_to"`
		} `json:"words"`
		Audio *struct {
			URL string `json:"url"`
		} `json:"audio"`
	} `json:"verse"`
}

// translation payload shape for api.alquran.cloud
type translationPayload struct {
	Code int `json:"code"`
	Data *struct {
		Text string `json:"text"`
	} `json:"data"`
}

// FetchVerseData retrieves the Arabic text, per-word timings and audio
// source reference for one verse.
func (c *Client) FetchVerseData(ctx context.Context, chapter, verse, recitationID int) (entity.VerseData, error) {
	ref := fmt.Sprintf("%d:%d", chapter, verse)
	u := fmt.Sprintf("%s/verses/by_key/%s?words=true&word_fields=text_uthmani&audio=%d&fields=text_uthmani",
		c.verseBaseURL, ref, recitationID)

	var payload versePayload
	if err := c.getJSON(ctx, "verse_data", ref, u, &payload); err != nil {
		return entity.VerseData{}, err
	}

	v := payload.Verse
	if v == nil || v.TextUthmani == "" {
		return entity.VerseData{}, &UpstreamError{Kind: KindMalformedResponse, Op: "verse_data", Ref: ref,
			Err: errors.New("response missing verse text")}
	}
	if v.Audio == nil || v.Audio.URL == "" {
		return entity.VerseData{}, &UpstreamError{Kind: KindMalformedResponse, Op: "verse_data", Ref: ref,
			Err: errors.New("response missing audio url")}
	}

	timings := make([]entity.WordTiming, 0, len(v.Words))
	for _, w := range v.Words {
		if w.TimestampFrom == nil || w.TimestampTo == nil || w.TextUthmani == "" {
			continue
		}
		timings = append(timings, entity.WordTiming{
			Token:   w.TextUthmani,
			StartMs: *w.TimestampFrom,
			EndMs:   *w.TimestampTo,
		})
	}
	if len(timings) == 0 {
		return entity.VerseData{}, &UpstreamError{Kind: KindMalformedResponse, Op: "verse_data", Ref: ref,
			Err: errors.New("no word timings in response")}
	}

	audioURL, err := c.resolveAudioURL(v.Audio.URL)
	if err != nil {
		return entity.VerseData{}, &UpstreamError{Kind: KindMalformedResponse, Op: "verse_data", Ref: ref, Err: err}
	}

	return entity.VerseData{
		VerseNumber:    verse,
		ArabicText:     v.TextUthmani,
		WordTimings:    timings,
		AudioSourceRef: audioURL,
	}, nil
}

// FetchTranslation retrieves the translated text for one verse.
func (c *Client) FetchTranslation(ctx context.Context, chapter, verse int, editionID string) (string, error) {
	ref := fmt.Sprintf("%d:%d", chapter, verse)
	u := fmt.Sprintf("%s/ayah/%s/%s", c.translationBaseURL, ref, editionID)

	var payload translationPayload
	if err := c.getJSON(ctx, "translation", ref, u, &payload); err != nil {
		return "", err
	}
	if payload.Code != http.StatusOK || payload.Data == nil || payload.Data.Text == "" {
		return "", &UpstreamError{Kind: KindMalformedResponse, Op: "translation", Ref: ref,
			Err: fmt.Errorf("upstream code %d without text", payload.Code)}
	}
	return payload.Data.Text, nil
}

// FetchAudio streams one narration clip to destPath. A partial file left
// by a failed download is removed before returning.
func (c *Client) FetchAudio(ctx context.Context, sourceRef, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceRef, nil)
	if err != nil {
		return &UpstreamError{Kind: KindUnavailable, Op: "audio", Ref: sourceRef, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Kind: transportKind(err), Op: "audio", Ref: sourceRef, Err: err}
	}
	defer resp.Body.Close()

	if kind, ok := statusKind(resp.StatusCode); ok {
		return &UpstreamError{Kind: kind, Op: "audio", Ref: sourceRef,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	f, err := os.Create(destPath)
	if err != nil {
		return &UpstreamError{Kind: KindUnavailable, Op: "audio", Ref: sourceRef, Err: err}
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(destPath)
		return &UpstreamError{Kind: transportKind(err), Op: "audio", Ref: sourceRef, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(destPath)
		return &UpstreamError{Kind: KindUnavailable, Op: "audio", Ref: sourceRef, Err: err}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, ref, rawURL string, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &UpstreamError{Kind: KindUnavailable, Op: op, Ref: ref, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Kind: transportKind(err), Op: op, Ref: ref, Err: err}
	}
	defer resp.Body.Close()

	if kind, ok := statusKind(resp.StatusCode); ok {
		return &UpstreamError{Kind: kind, Op: op, Ref: ref,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &UpstreamError{Kind: KindMalformedResponse, Op: op, Ref: ref, Err: err}
	}
	return nil
}

func (c *Client) resolveAudioURL(ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if parsed.IsAbs() {
		return ref, nil
	}
	base, err := url.Parse(c.audioBaseURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(parsed).String(), nil
}

// statusKind maps a non-2xx status to an error kind. ok is false for 2xx.
func statusKind(status int) (ErrorKind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusNotFound:
		return KindNotFound, true
	case status == http.StatusTooManyRequests:
		return KindRateLimited, true
	default:
		return KindUnavailable, true
	}
}

// transportKind classifies request errors: deadline and net timeouts are
// "timeout", everything else "unavailable".
func transportKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUnavailable
}
