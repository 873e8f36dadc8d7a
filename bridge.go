package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Message channel names shared with the presentation page.
const (
	channelSubmitForm = "submit-form"
	channelImageData  = "image-data"
)

const lastPortraitName = "last.png"

// Result is the payload of the image-data channel. Exactly one of
// ImageData and Error is set.
type Result struct {
	ID        string `json:"id"`
	ImageData string `json:"imageData,omitempty"`
	Error     string `json:"error,omitempty"`

	err error
}

func (r Result) Err() error { return r.err }

type BridgeOptions struct {
	ScratchDir string
	MaxRenders int64
	KeepLast   bool
}

// Bridge takes submissions to the compositor and brings encoded images back.
// Each submission renders into its own scratch file.
type Bridge struct {
	compositor Compositor
	history    *HistoryStore
	opts       BridgeOptions
	renders    *semaphore.Weighted
	log        *slog.Logger
}

func NewBridge(compositor Compositor, history *HistoryStore, opts BridgeOptions, logger *slog.Logger) (*Bridge, error) {
	if err := os.MkdirAll(opts.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	if opts.MaxRenders < 1 {
		opts.MaxRenders = 1
	}
	return &Bridge{
		compositor: compositor,
		history:    history,
		opts:       opts,
		renders:    semaphore.NewWeighted(opts.MaxRenders),
		log:        logger,
	}, nil
}

func (b *Bridge) Submit(ctx context.Context, sub CharacterSubmission) Result {
	id := uuid.NewString()
	log := b.log.With("id", id)
	log.Info("submission received", "name", sub.CharacterName, "health", sub.CharacterHealth)

	start := time.Now()
	imageData, err := b.render(ctx, id, sub)
	entry := HistoryEntry{
		ID:              id,
		CharacterName:   sub.CharacterName,
		CharacterHealth: sub.CharacterHealth,
		Status:          statusRendered,
		CreatedAt:       start,
	}
	if err != nil {
		entry.Status = statusFailed
		entry.Error = err.Error()
		log.Error("render failed", "error", err)
	} else {
		log.Info("portrait rendered", "elapsed", time.Since(start), "bytes", len(imageData))
	}

	if b.history != nil {
		// Recorded even when the caller has gone away.
		if herr := b.history.Record(context.WithoutCancel(ctx), entry); herr != nil {
			log.Warn("history not recorded", "error", herr)
		}
	}

	if err != nil {
		return Result{ID: id, Error: err.Error(), err: err}
	}
	return Result{ID: id, ImageData: imageData}
}

func (b *Bridge) render(ctx context.Context, id string, sub CharacterSubmission) (string, error) {
	if err := validateSubmission(sub); err != nil {
		return "", err
	}

	if err := b.renders.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for renderer: %w", err)
	}
	defer b.renders.Release(1)

	path := filepath.Join(b.opts.ScratchDir, id+".png")
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.log.Warn("scratch file not removed", "path", path, "error", err)
		}
	}()

	if err := b.compositor.Render(ctx, sub, path); err != nil {
		return "", fmt.Errorf("render portrait: %w", err)
	}

	imageData, err := EncodeDataURL(path)
	if err != nil {
		return "", fmt.Errorf("encode portrait: %w", err)
	}

	if b.opts.KeepLast {
		if err := keepLastPortrait(path, filepath.Join(b.opts.ScratchDir, lastPortraitName)); err != nil {
			b.log.Warn("last portrait not kept", "error", err)
		}
	}
	return imageData, nil
}

// keepLastPortrait copies src over dst via a temp file and rename.
func keepLastPortrait(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	tmp := src + ".last"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
