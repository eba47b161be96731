package runner

import (
	"os"
	"path/filepath"
	"strings"

	"quakebot/pkg/logx"
)

// pruneArtifacts removes rendered map images older than the retention window.
// Delivered records are never pruned, only the PNGs on disk.
func (r *Runner) pruneArtifacts() {
	if r.cfg.MapDir == "" || r.cfg.PruneRetention <= 0 {
		return
	}
	cutoff := r.now().Add(-r.cfg.PruneRetention)

	entries, err := os.ReadDir(r.cfg.MapDir)
	if err != nil {
		r.log.Warn("prune: read map dir", logx.Err(err))
		return
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.cfg.MapDir, e.Name())); err != nil {
			r.log.Warn("prune: remove", logx.String("file", e.Name()), logx.Err(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		r.log.Info("pruned map artifacts", logx.Int("removed", removed))
	}
}
