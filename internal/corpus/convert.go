// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pdiddy/research-editor/internal/container"
)

// DefaultMarkitdownImage is the image used when none is configured.
const DefaultMarkitdownImage = "markitdown:latest"

// Converter turns a binary document into Markdown for indexing.
type Converter interface {
	Convert(ctx context.Context, path string) (string, error)
}

// Markitdown converts documents by piping them through a markitdown
// container.
type Markitdown struct {
	runtime container.Runtime
	image   string
}

// NewMarkitdown returns a converter running image on rt. It fails when the
// image is not present locally.
func NewMarkitdown(ctx context.Context, rt container.Runtime, image string) (*Markitdown, error) {
	if image == "" {
		image = DefaultMarkitdownImage
	}
	if err := rt.ImageExists(ctx, image); err != nil {
		return nil, fmt.Errorf("markitdown image not available in %s: %w", rt.Name(), err)
	}
	return &Markitdown{runtime: rt, image: image}, nil
}

// Convert returns the Markdown rendering of the file at path.
func (m *Markitdown) Convert(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := m.runtime.Run(ctx, m.image, f, &out); err != nil {
		return "", fmt.Errorf("converting %s with markitdown: %w", path, err)
	}
	if len(bytes.TrimSpace(out.Bytes())) == 0 {
		return "", fmt.Errorf("markitdown produced empty output for %s", path)
	}
	return out.String(), nil
}
