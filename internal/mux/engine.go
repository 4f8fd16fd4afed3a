package mux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Engine is the codec backend. Load is called at most once per successful
// initialisation.
type Engine interface {
	Load(ctx context.Context) error
	Mux(ctx context.Context, videoPath, audioPath, outPath string) error
}

// FFmpeg runs the ffmpeg binary.
type FFmpeg struct {
	Path string

	bin     string
	version string
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

func (f *FFmpeg) Load(ctx context.Context) error {
	bin, err := exec.LookPath(f.Path)
	if err != nil {
		return fmt.Errorf("looking for `ffmpeg`: %w", err)
	}
	out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-version").Output()
	if err != nil {
		return fmt.Errorf("probing `ffmpeg`: %w", err)
	}
	f.bin = bin
	f.version, _, _ = strings.Cut(string(out), "\n")
	return nil
}

func (f *FFmpeg) Version() string {
	return f.version
}

// Mux copies the video stream, transcodes audio to AAC and stops at the
// shorter input.
func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	cmd := exec.CommandContext(ctx, f.bin,
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running `ffmpeg`: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
