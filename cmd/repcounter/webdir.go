package main

import (
	"os"
	"path/filepath"

	"github.com/ayusman/repcounter/internal/config"
)

// findWebDir returns configured if it is a directory, otherwise the first of
// "web", "../web", "../../web" and ~/.repcounter/web that exists, or "".
func findWebDir(configured string) string {
	if configured != "" {
		if info, err := os.Stat(configured); err == nil && info.IsDir() {
			return configured
		}
	}

	candidates := []string{"web", "../web", "../../web", filepath.Join(config.DataDir(), "web")}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	return ""
}
