// Package mux mixes a background track into generated videos.
package mux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"ykj/studio/internal/media"
	"ykj/studio/internal/model"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var ErrMuxFailed = errors.New("failed to mix audio and video")

const (
	videoInput = "input.mp4"
	audioInput = "input.mp3"
	output     = "output.mp4"
)

// Mixer owns the lazily loaded codec engine. Concurrent first callers share
// a single load; a failed load is retried on the next call.
type Mixer struct {
	engine Engine
	reg    *media.Registry
	hc     *http.Client
	log    *slog.Logger
	tmpDir string

	init  singleflight.Group
	mu    sync.Mutex
	ready bool
}

func NewMixer(engine Engine, reg *media.Registry, hc *http.Client, logger *slog.Logger) *Mixer {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Mixer{engine: engine, reg: reg, hc: hc, log: logger}
}

func (m *Mixer) loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *Mixer) ensureEngine(ctx context.Context) error {
	if m.loaded() {
		return nil
	}
	// the load outlives any single caller; each caller still stops waiting
	// when its own ctx ends
	loadCtx := context.WithoutCancel(ctx)
	ch := m.init.DoChan("engine", func() (any, error) {
		if m.loaded() {
			return nil, nil
		}
		if err := m.engine.Load(loadCtx); err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.ready = true
		m.mu.Unlock()
		m.log.Info("codec_engine_loaded")
		return nil, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-ch:
		return r.Err
	}
}

// MixAudioAndVideo returns a new reference to the muxed video. The input
// reference is left alone; releasing it is the caller's job.
func (m *Mixer) MixAudioAndVideo(ctx context.Context, videoRef model.Ref, audioLocator string) (model.Ref, error) {
	if err := m.ensureEngine(ctx); err != nil {
		return "", fmt.Errorf("%w: load engine: %w", ErrMuxFailed, err)
	}

	dir, err := os.MkdirTemp(m.tmpDir, "mux-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMuxFailed, err)
	}
	defer os.RemoveAll(dir)

	videoPath := filepath.Join(dir, videoInput)
	audioPath := filepath.Join(dir, audioInput)
	outPath := filepath.Join(dir, output)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.fetchTo(gctx, string(videoRef), videoPath)
	})
	g.Go(func() error {
		return m.fetchTo(gctx, audioLocator, audioPath)
	})
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("%w: fetch inputs: %w", ErrMuxFailed, err)
	}

	if err := m.engine.Mux(ctx, videoPath, audioPath, outPath); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMuxFailed, err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("%w: read output: %w", ErrMuxFailed, err)
	}
	return m.reg.Create(data, "video/mp4"), nil
}

func (m *Mixer) fetchTo(ctx context.Context, locator, path string) error {
	if media.IsRef(locator) {
		blob, err := m.reg.Open(model.Ref(locator))
		if err != nil {
			return err
		}
		return os.WriteFile(path, blob.Data, 0o600)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return err
	}
	resp, err := m.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: %s", locator, resp.Status)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
