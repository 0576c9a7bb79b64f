// Package video produces the video artifact of a marketing package: a primary
// provider call bounded by a timeout, with a deterministic slideshow as the
// single fallback tier.
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/promoflow/pkg/models"
)

// ErrFallbackTriggered marks the substitution of the slideshow path. It is
// recorded in the artifact metadata and never returned to callers.
var ErrFallbackTriggered = errors.New("video fallback triggered")

const (
	DefaultTransition = "crossfade"
	DefaultTimeout    = 120 * time.Second
)

// Provider is the primary video generation collaborator.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, images []string, durationSec int) (*models.VideoArtifact, error)
}

// SlideshowBuilder assembles a slideshow from still images.
type SlideshowBuilder interface {
	CreateSlideshow(ctx context.Context, images, captions []string, durationSec int, transition string) (*models.VideoArtifact, error)
}

type Strategy struct {
	primary    Provider
	slideshow  SlideshowBuilder
	transition string
	logger     *slog.Logger
	onFallback func(reason string)
}

type Option func(*Strategy)

// WithPrimary configures the provider tried before the slideshow. A nil
// provider routes every request to the slideshow.
func WithPrimary(provider Provider) Option {
	return func(s *Strategy) {
		s.primary = provider
	}
}

func WithTransition(transition string) Option {
	return func(s *Strategy) {
		if transition != "" {
			s.transition = transition
		}
	}
}

// WithFallbackHook is called with the reason every time the slideshow substitutes the primary.
func WithFallbackHook(hook func(reason string)) Option {
	return func(s *Strategy) {
		s.onFallback = hook
	}
}

func NewStrategy(slideshow SlideshowBuilder, logger *slog.Logger, opts ...Option) *Strategy {
	s := &Strategy{
		slideshow:  slideshow,
		transition: DefaultTransition,
		logger:     logger.With("module", "video"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type primaryResult struct {
	artifact *models.VideoArtifact
	err      error
}

// Generate returns the primary provider's video when it answers within
// timeout, otherwise a slideshow built from images. Cancellation of ctx is
// returned as is and never triggers the fallback.
func (s *Strategy) Generate(ctx context.Context, prompt string, images []string, durationSec int, timeout time.Duration) (*models.VideoArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.primary == nil {
		return s.fallback(ctx, prompt, images, durationSec, "no primary provider configured")
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := s.logger.With("provider", s.primary.Name())

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan primaryResult, 1)

	go func() {
		artifact, err := s.primary.Generate(callCtx, prompt, images, durationSec)
		done <- primaryResult{artifact: artifact, err: err}
	}()

	var reason string

	select {
	case res := <-done:
		if res.err == nil && res.artifact != nil {
			artifact := *res.artifact
			artifact.IsFallback = false

			if artifact.Provider == "" {
				artifact.Provider = s.primary.Name()
			}

			if artifact.DurationSec == 0 {
				artifact.DurationSec = durationSec
			}

			return &artifact, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		reason = "primary provider returned no artifact"
		if res.err != nil {
			reason = res.err.Error()
		}
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		reason = fmt.Sprintf("primary provider timed out after %s", timeout)
	}

	logger.WarnContext(ctx, "Primary video generation failed, building slideshow", "reason", reason)

	return s.fallback(ctx, prompt, images, durationSec, reason)
}

func (s *Strategy) fallback(ctx context.Context, prompt string, images []string, durationSec int, reason string) (*models.VideoArtifact, error) {
	if s.onFallback != nil {
		s.onFallback(reason)
	}

	artifact, err := s.slideshow.CreateSlideshow(ctx, images, Captions(prompt), durationSec, s.transition)
	if err != nil {
		return nil, fmt.Errorf("slideshow fallback failed: %w", err)
	}

	artifact.IsFallback = true
	artifact.DurationSec = durationSec

	if artifact.Metadata == nil {
		artifact.Metadata = make(map[string]any)
	}

	artifact.Metadata["fallback_reason"] = fmt.Sprintf("%v: %s", ErrFallbackTriggered, reason)

	return artifact, nil
}

// Captions splits prompt into sentence captions. An empty prompt yields none.
func Captions(prompt string) []string {
	fields := strings.FieldsFunc(prompt, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})

	captions := make([]string, 0, len(fields))

	for _, field := range fields {
		if caption := strings.TrimSpace(field); caption != "" {
			captions = append(captions, caption)
		}
	}

	if len(captions) == 0 {
		return nil
	}

	return captions
}
