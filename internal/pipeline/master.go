package pipeline

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// masteringFilter is the full audio chain applied to every track before it
// is cached: a rumble high-pass, gentle low and high shelf lifts, soft-knee
// compression, and EBU R128 loudness normalization to -14 LUFS.
const masteringFilter = "highpass=f=40," +
	"equalizer=f=60:width_type=o:width=2:g=2," +
	"equalizer=f=14000:width_type=o:width=2:g=1," +
	"compand=attacks=0:points=-80/-80|-15/-15|-0/-0.5|20/-0.1:gain=1," +
	"loudnorm=I=-14:TP=-1.0:LRA=11"

// Masterer runs audio through the ffmpeg mastering chain.
type Masterer struct {
	binary string
	logger *log.Logger
}

// NewMasterer creates a masterer using the ffmpeg on PATH.
func NewMasterer(logger *log.Logger) *Masterer {
	return &Masterer{binary: "ffmpeg", logger: logger}
}

// SetBinary overrides the ffmpeg binary path. Used by tests.
func (m *Masterer) SetBinary(binary string) {
	m.binary = binary
}

// Master processes inputPath through the mastering chain and returns the path
// of the processed file. Mastering is best-effort: on any failure the original
// file is returned untouched so acquisition still completes. On success the
// original file is removed.
func (m *Masterer) Master(ctx context.Context, inputPath string) string {
	ext := filepath.Ext(inputPath)
	outputPath := strings.TrimSuffix(inputPath, ext) + "_mastered" + ext

	args := []string{
		"-i", inputPath,
		"-af", masteringFilter,
		"-ar", "48000",
		"-b:a", "320k",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, m.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if m.logger != nil {
			m.logger.Warn("mastering failed, using original audio",
				"input", inputPath, "error", err, "stderr", lastLine(stderr.String()))
		}
		os.Remove(outputPath)
		return inputPath
	}

	if info, err := os.Stat(outputPath); err != nil || info.Size() == 0 {
		if m.logger != nil {
			m.logger.Warn("mastering produced no output, using original audio", "input", inputPath)
		}
		os.Remove(outputPath)
		return inputPath
	}

	os.Remove(inputPath)
	return outputPath
}

// CleanupTemp removes a pipeline temp file and its parent directory when the
// parent is otherwise empty.
func CleanupTemp(path string) {
	if path == "" {
		return
	}
	os.Remove(path)

	dir := filepath.Dir(path)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
