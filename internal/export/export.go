// Package export turns the current scene into a downloadable artifact: a
// PNG bitmap or a standalone SVG document.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/lienzo/internal/logging"
	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/pkg/schema"
)

// Format names an export artifact type.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// DefaultScale is the bitmap scale used when Options.Scale is unset.
const DefaultScale = 2.0

// ParseFormat accepts "png" and "svg" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatPNG:
		return FormatPNG, nil
	case FormatSVG:
		return FormatSVG, nil
	}
	return "", schema.NewErrorf(schema.ErrCodeValidation, "unsupported export format %q", s)
}

// MediaType returns the MIME type of the format.
func (f Format) MediaType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// Options tune an export.
type Options struct {
	// Scale multiplies the scene's natural size for bitmaps.
	Scale float64
	// Background is a CSS colour painted behind the scene. Empty keeps the
	// background transparent.
	Background string
}

func (o Options) scale() float64 {
	if o.Scale <= 0 {
		return DefaultScale
	}
	return o.Scale
}

// Artifact is one produced export.
type Artifact struct {
	ID        uuid.UUID `json:"id"`
	Format    Format    `json:"format"`
	MediaType string    `json:"media_type"`
	Data      []byte    `json:"-"`
	// FellBack is set when a document was requested and a bitmap was
	// produced instead.
	FellBack  bool      `json:"fell_back,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filename suggests a download name for the artifact.
func (a *Artifact) Filename() string {
	return fmt.Sprintf("lienzo-%s.%s", a.ID.String()[:8], a.Format)
}

// BitmapWriter rasterizes a scene.
type BitmapWriter interface {
	Rasterize(ctx context.Context, sc *scene.Scene, opts Options) ([]byte, error)
}

// DocumentWriter serializes a scene as a standalone document.
type DocumentWriter interface {
	Document(ctx context.Context, sc *scene.Scene, opts Options) ([]byte, error)
}

// Exporter dispatches to the bitmap and document writers. A failed document
// export falls back to a bitmap.
type Exporter struct {
	bitmap   BitmapWriter
	document DocumentWriter
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an exporter. Nil writers default to the built-in ones.
func New(bitmap BitmapWriter, document DocumentWriter, logger *slog.Logger) *Exporter {
	if bitmap == nil {
		bitmap = NewRasterizer()
	}
	if document == nil {
		document = SVGDocument{}
	}
	return &Exporter{
		bitmap:   bitmap,
		document: document,
		logger:   logging.OrDefault(logger),
		now:      time.Now,
	}
}

// Export produces an artifact of the requested format from sc. The scene is
// exported as rendered; pointer decorations are never part of it.
func (e *Exporter) Export(ctx context.Context, sc *scene.Scene, format Format, opts Options) (*Artifact, error) {
	if sc == nil || sc.Root == nil {
		return nil, schema.NewError(schema.ErrCodeNoScene, "nothing has been rendered yet")
	}
	log := logging.LogWith(ctx, e.logger)

	if format == FormatSVG {
		data, err := e.document.Document(ctx, sc, opts)
		if err == nil {
			return e.artifact(FormatSVG, data, false), nil
		}
		log.Warn("document export failed, falling back to bitmap", "error", err)
		data, berr := e.bitmap.Rasterize(ctx, sc, opts)
		if berr != nil {
			log.Error("bitmap fallback failed", "error", berr)
			return nil, schema.NewError(schema.ErrCodeExport, "export failed").WithCause(berr)
		}
		return e.artifact(FormatPNG, data, true), nil
	}

	data, err := e.bitmap.Rasterize(ctx, sc, opts)
	if err != nil {
		log.Error("bitmap export failed", "error", err)
		return nil, schema.NewError(schema.ErrCodeExport, "export failed").WithCause(err)
	}
	return e.artifact(FormatPNG, data, false), nil
}

func (e *Exporter) artifact(f Format, data []byte, fellBack bool) *Artifact {
	return &Artifact{
		ID:        uuid.New(),
		Format:    f,
		MediaType: f.MediaType(),
		Data:      data,
		FellBack:  fellBack,
		CreatedAt: e.now().UTC(),
	}
}
