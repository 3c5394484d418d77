// Package artifact persists synthesis output: the audio file and the viseme
// timeline that drives the avatar's mouth while it plays.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/visemetrack/internal/lipsync"
	"github.com/MrWong99/visemetrack/pkg/types"
)

// VisemeSuffix is appended to the base path to name the timeline file.
const VisemeSuffix = "_viseme_data.json"

// Paths names the files produced by [Write].
type Paths struct {
	Audio   string
	Visemes string
}

// PathsFor returns the artifact paths for base and an audio extension given
// with or without its leading dot.
func PathsFor(base, audioExt string) Paths {
	ext := strings.TrimPrefix(audioExt, ".")
	return Paths{
		Audio:   base + "." + ext,
		Visemes: base + VisemeSuffix,
	}
}

// Write stores audio at <base>.<audioExt> and events at
// <base>_viseme_data.json, creating the parent directory if needed. Both
// files are staged next to their destination concurrently and only renamed
// into place once both writes succeeded. If the timeline cannot be
// committed, the previous audio file (or its absence) is restored.
//
// The timeline is a 2-space indented JSON array of {"timestamp", "viseme"}
// objects; an empty timeline is written as [].
func Write(ctx context.Context, base string, audio []byte, audioExt string, events []lipsync.VisemeEvent) (Paths, error) {
	if base == "" {
		return Paths{}, errors.New("artifact: empty output path")
	}
	if audioExt == "" {
		return Paths{}, errors.New("artifact: empty audio extension")
	}
	paths := PathsFor(base, audioExt)

	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return Paths{}, fmt.Errorf("artifact: create output directory: %w", err)
	}

	timeline, err := encodeTimeline(events)
	if err != nil {
		return Paths{}, err
	}

	var (
		audioTmp, visemeTmp string
		g, gctx             = errgroup.WithContext(ctx)
	)
	g.Go(func() error {
		var err error
		audioTmp, err = stage(gctx, paths.Audio, audio)
		return err
	})
	g.Go(func() error {
		var err error
		visemeTmp, err = stage(gctx, paths.Visemes, timeline)
		return err
	})
	if err := g.Wait(); err != nil {
		removeQuietly(audioTmp, visemeTmp)
		return Paths{}, err
	}

	// Keep the old audio aside until the timeline is in place.
	var prevAudio string
	if _, err := os.Lstat(paths.Audio); err == nil {
		prevAudio = audioTmp + ".prev"
		if err := os.Rename(paths.Audio, prevAudio); err != nil {
			removeQuietly(audioTmp, visemeTmp)
			return Paths{}, fmt.Errorf("artifact: set aside %s: %w", paths.Audio, err)
		}
	}
	rollback := func() {
		if prevAudio != "" {
			_ = os.Rename(prevAudio, paths.Audio)
		} else {
			removeQuietly(paths.Audio)
		}
	}

	if err := os.Rename(audioTmp, paths.Audio); err != nil {
		removeQuietly(audioTmp, visemeTmp)
		rollback()
		return Paths{}, fmt.Errorf("artifact: commit %s: %w", paths.Audio, err)
	}
	if err := os.Rename(visemeTmp, paths.Visemes); err != nil {
		removeQuietly(visemeTmp)
		rollback()
		return Paths{}, fmt.Errorf("artifact: commit %s: %w", paths.Visemes, err)
	}
	removeQuietly(prevAudio)
	return paths, nil
}

// WriteVisemes stores only the timeline at <base>_viseme_data.json, for
// alignments replayed without fresh audio. It returns the written path.
func WriteVisemes(ctx context.Context, base string, events []lipsync.VisemeEvent) (string, error) {
	if base == "" {
		return "", errors.New("artifact: empty output path")
	}
	dest := base + VisemeSuffix
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("artifact: create output directory: %w", err)
	}
	timeline, err := encodeTimeline(events)
	if err != nil {
		return "", err
	}
	tmp, err := stage(ctx, dest, timeline)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dest); err != nil {
		removeQuietly(tmp)
		return "", fmt.Errorf("artifact: commit %s: %w", dest, err)
	}
	return dest, nil
}

func encodeTimeline(events []lipsync.VisemeEvent) ([]byte, error) {
	if events == nil {
		events = []lipsync.VisemeEvent{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("artifact: encode visemes: %w", err)
	}
	return data, nil
}

// stage writes data to a temporary file in dest's directory and returns its
// name.
func stage(ctx context.Context, dest string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return "", fmt.Errorf("artifact: stage %s: %w", dest, err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("artifact: write %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("artifact: close %s: %w", dest, err)
	}
	return name, nil
}

func removeQuietly(names ...string) {
	for _, n := range names {
		if n != "" {
			_ = os.Remove(n)
		}
	}
}

// ReadAlignment loads a character alignment from a JSON file in any shape
// [DecodeAlignment] accepts.
func ReadAlignment(path string) (types.CharacterAlignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.CharacterAlignment{}, fmt.Errorf("artifact: read alignment: %w", err)
	}
	a, err := DecodeAlignment(data)
	if err != nil {
		return types.CharacterAlignment{}, fmt.Errorf("%w (%s)", err, path)
	}
	return a, nil
}

// DecodeAlignment parses a bare alignment object or a full with-timestamps
// response, in which case the normalized alignment is preferred over the raw
// one.
func DecodeAlignment(data []byte) (types.CharacterAlignment, error) {
	var doc struct {
		types.CharacterAlignment
		Alignment           *types.CharacterAlignment `json:"alignment"`
		NormalizedAlignment *types.CharacterAlignment `json:"normalized_alignment"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return types.CharacterAlignment{}, fmt.Errorf("artifact: decode alignment: %w", err)
	}
	switch {
	case doc.NormalizedAlignment != nil && !doc.NormalizedAlignment.IsEmpty():
		return *doc.NormalizedAlignment, nil
	case doc.Alignment != nil && !doc.Alignment.IsEmpty():
		return *doc.Alignment, nil
	default:
		return doc.CharacterAlignment, nil
	}
}

// WriteAlignment stores a as indented JSON at path, in the shape
// [ReadAlignment] accepts.
func WriteAlignment(path string, a types.CharacterAlignment) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("artifact: create output directory: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode alignment: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("artifact: write alignment: %w", err)
	}
	return nil
}
