package tools

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
)

//go:embed presets/tools/*.json presets/prompts/*.txt
var presets embed.FS

// InstallPresets copies the built-in tool definitions and prompts into the
// registry's storage roots. Existing files are kept unless overwrite is set.
// It returns the number of files written.
func (r *Registry) InstallPresets(ctx context.Context, overwrite bool) (int, error) {
	written := 0
	for _, set := range []struct{ dir, dest string }{
		{"presets/tools", r.toolsURL},
		{"presets/prompts", r.promptsURL},
	} {
		entries, err := fs.ReadDir(presets, set.dir)
		if err != nil {
			return written, err
		}
		for _, e := range entries {
			n, err := installOne(ctx, r.fs, path.Join(set.dir, e.Name()), url.Join(set.dest, e.Name()), overwrite)
			if err != nil {
				return written, err
			}
			written += n
		}
	}
	return written, nil
}

func installOne(ctx context.Context, service afs.Service, src, dest string, overwrite bool) (int, error) {
	if !overwrite {
		exists, err := service.Exists(ctx, dest)
		if err != nil {
			return 0, fmt.Errorf("stat %s: %w", dest, err)
		}
		if exists {
			return 0, nil
		}
	}
	data, err := presets.ReadFile(src)
	if err != nil {
		return 0, err
	}
	if err := service.Upload(ctx, dest, 0o644, bytes.NewReader(data)); err != nil {
		return 0, fmt.Errorf("write %s: %w", dest, err)
	}
	slog.Debug("installed preset", "dest", dest)
	return 1, nil
}
