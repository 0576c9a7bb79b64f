package video

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/promoflow/pkg/models"
)

const SlideshowProvider = "slideshow"

var ErrNoImages = errors.New("slideshow requires at least one image")

type slide struct {
	Image       string  `json:"image"`
	Caption     string  `json:"caption,omitempty"`
	StartSec    float64 `json:"start_sec"`
	DurationSec float64 `json:"duration_sec"`
}

type manifest struct {
	DurationSec int     `json:"duration_sec"`
	Transition  string  `json:"transition"`
	Slides      []slide `json:"slides"`
}

// LocalSlideshow writes slideshow manifests into a directory. The file name is
// the SHA-256 of the manifest, so identical inputs produce the same URL.
type LocalSlideshow struct {
	dir string
}

func NewLocalSlideshow(dir string) *LocalSlideshow {
	return &LocalSlideshow{dir: strings.TrimPrefix(dir, "file://")}
}

func (l *LocalSlideshow) CreateSlideshow(ctx context.Context, images, captions []string, durationSec int, transition string) (*models.VideoArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(images) == 0 {
		return nil, ErrNoImages
	}

	if durationSec <= 0 {
		return nil, fmt.Errorf("invalid slideshow duration %d", durationSec)
	}

	m := buildManifest(images, captions, durationSec, transition)

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal slideshow manifest: %w", err)
	}

	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + ".json"

	err = os.MkdirAll(l.dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create slideshow directory: %w", err)
	}

	path, err := filepath.Abs(filepath.Join(l.dir, name))
	if err != nil {
		return nil, err
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to write slideshow manifest: %w", err)
	}

	return &models.VideoArtifact{
		URL:         "file://" + path,
		Provider:    SlideshowProvider,
		DurationSec: durationSec,
		IsFallback:  true,
		Metadata: map[string]any{
			"transition":  transition,
			"slide_count": len(m.Slides),
			"captions":    captions,
		},
	}, nil
}

// buildManifest spreads durationSec evenly over the images and assigns
// captions round-robin.
func buildManifest(images, captions []string, durationSec int, transition string) manifest {
	per := float64(durationSec) / float64(len(images))
	slides := make([]slide, len(images))

	for i, image := range images {
		s := slide{
			Image:       image,
			StartSec:    per * float64(i),
			DurationSec: per,
		}

		if len(captions) > 0 {
			s.Caption = captions[i%len(captions)]
		}

		slides[i] = s
	}

	return manifest{DurationSec: durationSec, Transition: transition, Slides: slides}
}
