package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileSource reads a diagnostics snapshot exported by the editor
// integration. A missing file means the source is unavailable.
type FileSource struct {
	Path string
}

// Diagnostics loads and decodes the snapshot file.
func (s FileSource) Diagnostics(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Path == "" {
		return nil, fmt.Errorf("diagnostics: no snapshot path configured")
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: read %s: %w", s.Path, err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("diagnostics: decode %s: %w", s.Path, err)
	}
	return snapshot, nil
}
