package diagram

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMMDC writes a shell script standing in for mmdc. It copies a fixed SVG
// to the -o path, or fails with stderr when the input mentions "boom".
func fakeMMDC(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
in=""; out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift ;;
    -o) out="$2"; shift ;;
  esac
  shift
done
if grep -q boom "$in"; then
  echo "Parse error on line 2: boom" >&2
  exit 1
fi
printf '<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 120 40"><g class="node"><rect x="0" y="0" width="120" height="40"/><text>Hi</text></g></svg>' > "$out"
`
	path := filepath.Join(t.TempDir(), "mmdc")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestMermaidCLIRenderer_Render(t *testing.T) {
	r := &MermaidCLIRenderer{Path: fakeMMDC(t), Timeout: 5 * time.Second}

	sc, err := r.Render(context.Background(), "graph TD\nA-->B", "diagram-7")
	require.NoError(t, err)
	assert.Equal(t, "diagram-7", sc.Root.ID())

	size, ok := sc.Measure()
	require.True(t, ok)
	assert.Equal(t, 120.0, size.W)
	assert.Equal(t, 40.0, size.H)
}

func TestMermaidCLIRenderer_StderrIsMessage(t *testing.T) {
	r := &MermaidCLIRenderer{Path: fakeMMDC(t)}

	_, err := r.Render(context.Background(), "graph TD\nboom", "diagram-8")
	require.Error(t, err)
	assert.Equal(t, "Parse error on line 2: boom", err.Error())
}

func TestMermaidCLIRenderer_MissingBinary(t *testing.T) {
	r := &MermaidCLIRenderer{Path: filepath.Join(t.TempDir(), "absent")}
	_, err := r.Render(context.Background(), "graph TD\nA", "diagram-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mmdc")
}
