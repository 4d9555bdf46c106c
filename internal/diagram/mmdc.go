package diagram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/lienzo/internal/logging"
	"github.com/rendis/lienzo/internal/scene"
)

// DefaultMermaidCLITimeout bounds a single mmdc invocation.
const DefaultMermaidCLITimeout = 30 * time.Second

// MermaidCLIRenderer renders through an external mmdc binary for full
// notation fidelity. The source is written to a temp file, mmdc writes SVG
// next to it and the SVG is parsed into a scene.
type MermaidCLIRenderer struct {
	Path    string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Render implements render.Renderer. mmdc's stderr becomes the error message.
func (r *MermaidCLIRenderer) Render(ctx context.Context, source, targetID string) (*scene.Scene, error) {
	path := r.Path
	if path == "" {
		path = "mmdc"
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultMermaidCLITimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "lienzo-mmdc-")
	if err != nil {
		return nil, fmt.Errorf("mmdc: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "diagram.mmd")
	out := filepath.Join(dir, "diagram.svg")
	if err := os.WriteFile(in, []byte(source), 0o600); err != nil {
		return nil, fmt.Errorf("mmdc: write input: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, "-i", in, "-o", out, "-b", "transparent", "-q")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errors.New(msg)
		}
		return nil, fmt.Errorf("mmdc: %w", err)
	}

	svg, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("mmdc: read output: %w", err)
	}
	logging.LogWith(ctx, logging.OrDefault(r.Logger)).Debug("mmdc render done", "target", targetID, "bytes", len(svg))
	return sceneFromSVG(targetID, svg)
}
