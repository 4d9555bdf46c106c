// gen-samples renders the starter diagram in every built-in theme for
// README documentation.
// Run: go run ./cmd/gen-samples
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/lienzo/internal/diagram"
	"github.com/rendis/lienzo/internal/export"
	"github.com/rendis/lienzo/internal/render"
	"github.com/rendis/lienzo/internal/theme"
)

func main() {
	ctx := context.Background()
	source := diagram.DefaultTemplate()

	model, err := diagram.ParseFlowchart(source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
		os.Exit(1)
	}

	outDir := filepath.Join("docs", "assets")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}

	// ASCII (mermaid-ascii with built-in fallback)
	home, _ := os.UserHomeDir()
	ascii := diagram.RenderASCIIAuto(ctx, model, filepath.Join(home, ".lienzo", "bin"))
	write(filepath.Join(outDir, "sample-ascii.txt"), []byte(ascii))
	fmt.Println("=== ASCII ===")
	fmt.Println(ascii)

	// Normalized notation
	notation := diagram.RenderMermaid(model)
	write(filepath.Join(outDir, "sample-mermaid.md"), []byte("```mermaid\n"+notation+"\n```\n"))

	// Graphviz-native PNG, for comparison with the rasterized exports
	if png, err := diagram.RenderImage(ctx, model); err != nil {
		fmt.Fprintf(os.Stderr, "image error: %v\n", err)
	} else {
		write(filepath.Join(outDir, "sample-graphviz.png"), png)
	}

	renderer := diagram.NewGraphvizRenderer(nil)
	exporter := export.New(nil, nil, nil)
	for _, th := range theme.Builtins() {
		themed, err := render.ApplyTheme(source, th)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", th.ID, err)
			continue
		}
		sc, err := renderer.Render(ctx, themed, "sample-"+th.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: render error: %v\n", th.ID, err)
			continue
		}
		for _, f := range []export.Format{export.FormatSVG, export.FormatPNG} {
			art, err := exporter.Export(ctx, sc, f, export.Options{})
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %s export error: %v\n", th.ID, f, err)
				continue
			}
			path := filepath.Join(outDir, "sample-"+th.ID+"."+string(f))
			write(path, art.Data)
			fmt.Printf("Written: %s (%d bytes)\n", path, len(art.Data))
		}
	}
}

func write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
	}
}
