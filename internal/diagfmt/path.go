package diagfmt

import (
	"path/filepath"

	"mdisp/internal/source"
)

const autoPathLimit = 40

func formatPath(f *source.File, mode PathMode, base string) string {
	switch mode {
	case PathModeAbsolute:
		if f.Flags&source.FileVirtual != 0 {
			return f.Path
		}
		if abs, err := filepath.Abs(f.Path); err == nil {
			return filepath.ToSlash(abs)
		}
	case PathModeRelative:
		if base != "" {
			if rel, err := filepath.Rel(base, f.Path); err == nil {
				return filepath.ToSlash(rel)
			}
		}
	case PathModeBasename:
		return filepath.Base(f.Path)
	case PathModeAuto:
		if filepath.IsAbs(f.Path) && len(f.Path) > autoPathLimit {
			return filepath.Base(f.Path)
		}
	}
	return f.Path
}
