// Package script turns provider-written script text into an ordered scene
// sequence. Scripts are expected as repeated lines of the shape
//
//	SCENE <n>: <description> | Duration: <seconds> seconds
//
// Lines that carry the marker but cannot be parsed are skipped, not fatal.
package script

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"genserver/internal/domain"

	"github.com/rs/zerolog/log"
)

var ErrNoScenes = errors.New("no scenes parsed from script")

const (
	sceneMarker       = "SCENE"
	durationDelimiter = "| Duration:"
)

// RealismDirective is prepended to every scene description before it reaches
// image generation, so each request carries the same stylistic constraints.
const RealismDirective = "This is a high-quality scene of live film captured by camera, not a photo, not a cartoon. " +
	"Everything in the scene is sharp and clear. Real people, real environment, real scene. description: "

// Parse extracts scenes from script text, sorts them by scene number and
// recomputes contiguous start/end times. Returns ErrNoScenes when nothing
// usable was found.
func Parse(text string) ([]domain.Scene, error) {
	var scenes []domain.Scene

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, sceneMarker) || !strings.Contains(line, durationDelimiter) {
			continue
		}

		s, err := parseLine(line)
		if err != nil {
			log.Warn().Err(err).Str("line", line).Msg("skipping malformed scene line")
			continue
		}
		scenes = append(scenes, s)
	}

	if len(scenes) == 0 {
		return nil, ErrNoScenes
	}

	sort.SliceStable(scenes, func(i, j int) bool { return scenes[i].Number < scenes[j].Number })
	domain.Retime(scenes)
	return scenes, nil
}

func parseLine(line string) (domain.Scene, error) {
	head, tail, _ := strings.Cut(line, durationDelimiter)

	// head is "SCENE <n>: <description>"
	marker, desc, ok := strings.Cut(head, ":")
	if !ok {
		return domain.Scene{}, errors.New("missing scene number separator")
	}

	num, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(marker, sceneMarker)))
	if err != nil {
		return domain.Scene{}, errors.New("unparseable scene number")
	}

	dur, err := parseDuration(tail)
	if err != nil {
		return domain.Scene{}, err
	}

	desc = strings.TrimSpace(desc)
	if desc == "" {
		return domain.Scene{}, errors.New("empty scene description")
	}

	return domain.Scene{Number: num, Description: desc, Duration: dur}, nil
}

func parseDuration(text string) (float64, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "seconds")
	text = strings.TrimSuffix(text, "second")
	dur, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || dur <= 0 {
		return 0, errors.New("unparseable scene duration")
	}
	return dur, nil
}
