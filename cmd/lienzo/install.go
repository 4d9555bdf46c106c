package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const mermaidASCIIVersion = "1.1.0"

// SHA-256 checksums for mermaid-ascii v1.1.0 release assets.
var mermaidASCIIChecksums = map[string]string{
	"mermaid-ascii_Darwin_arm64.tar.gz":  "068d2ff869d4921655cab471500fffd8c3ed28155b100518ed3cf3835d53d3d0",
	"mermaid-ascii_Darwin_x86_64.tar.gz": "0cd4c9c01a03284fe866f39a1ce1aaee1e6a2fbd91deedc4ec254cb87622eec8",
	"mermaid-ascii_Linux_arm64.tar.gz":   "3b7d0a95141bfbca838e445ea802ffb7fba8873b3c4af498482c84f83526f2db",
	"mermaid-ascii_Linux_x86_64.tar.gz":  "838ea93d561b3bc83aa15531c6ed7d2d261a8edc521d5484f7e91fe831cc4c65",
}

// runInstall writes ~/.lienzo/settings.json from flags and fetches the
// optional mermaid-ascii preview binary.
func runInstall(args []string) {
	cfg := defaultConfig()
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	fs.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "panel listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "session database path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.Renderer, "renderer", cfg.Renderer, "renderer: graphviz or mermaid-cli")
	fs.StringVar(&cfg.MermaidCLIPath, "mmdc", "", "path to the mmdc binary (mermaid-cli renderer)")
	fs.StringVar(&cfg.Theme, "theme", cfg.Theme, "initial theme id")
	fs.StringVar(&cfg.ThemeCatalog, "theme-catalog", "", "YAML theme catalog path")
	skipTools := fs.Bool("skip-tools", false, "do not download mermaid-ascii")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	dir := lienzoDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create %s: %v\n", dir, err)
		os.Exit(1)
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	if err := applySettings(&Config{}, data); err != nil {
		fmt.Fprintf(os.Stderr, "Error: generated settings are invalid: %v\n", err)
		os.Exit(1)
	}
	path := settingsPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot write %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", path)

	if !*skipTools {
		installMermaidASCII(cfg.MermaidASCIIDir)
	}
}

// installMermaidASCII downloads the mermaid-ascii binary to binDir.
// Non-fatal: previews fall back to the built-in ASCII renderer.
func installMermaidASCII(binDir string) {
	destPath := filepath.Join(binDir, "mermaid-ascii")
	if _, err := os.Stat(destPath); err == nil {
		fmt.Printf("mermaid-ascii already installed at %s\n", destPath)
		return
	}

	assetName, err := mermaidASCIIAssetName(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		warnFallback(err)
		return
	}
	expected, ok := mermaidASCIIChecksums[assetName]
	if !ok {
		warnFallback(fmt.Errorf("no known checksum for %s", assetName))
		return
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		warnFallback(err)
		return
	}

	url := fmt.Sprintf("https://github.com/AlexanderGrooff/mermaid-ascii/releases/download/%s/%s",
		mermaidASCIIVersion, assetName)
	fmt.Printf("Downloading mermaid-ascii %s...\n", mermaidASCIIVersion)

	client := &http.Client{Timeout: 60 * time.Second}
	if err := fetchVerified(client, url, expected, binDir, "mermaid-ascii"); err != nil {
		_ = os.Remove(destPath)
		warnFallback(err)
		return
	}
	fmt.Printf("mermaid-ascii installed to %s\n", destPath)
}

func warnFallback(err error) {
	fmt.Fprintf(os.Stderr, "Warning: %v; ASCII previews will use the built-in renderer\n", err)
}

// mermaidASCIIAssetName returns the release asset name for a platform.
func mermaidASCIIAssetName(goos, goarch string) (string, error) {
	osName := ""
	switch goos {
	case "darwin":
		osName = "Darwin"
	case "linux":
		osName = "Linux"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported OS %q", goos)
	}

	archName := ""
	switch goarch {
	case "amd64":
		archName = "x86_64"
	case "arm64":
		archName = "arm64"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported architecture %q", goarch)
	}

	return fmt.Sprintf("mermaid-ascii_%s_%s.tar.gz", osName, archName), nil
}

// fetchVerified downloads a tar.gz, checks its SHA-256 and extracts name
// into destDir as an executable.
func fetchVerified(client httpGetter, url, wantSHA, destDir, name string) error {
	tmpPath, err := downloadToTempFile(url, destDir, client)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer os.Remove(tmpPath)

	got, err := sha256File(tmpPath)
	if err != nil {
		return fmt.Errorf("checksum: %w", err)
	}
	if !strings.EqualFold(got, wantSHA) {
		return fmt.Errorf("checksum mismatch (expected %s, got %s)", wantSHA, got)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := extractTarGz(f, destDir, name); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	return os.Chmod(filepath.Join(destDir, name), 0o755)
}
