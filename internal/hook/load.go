package hook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned by Load for a file extension it cannot load.
var ErrUnsupported = errors.New("unsupported hook type")

// Load resolves the hook at path once, at startup. An empty path means no
// hook and returns nil. Relative paths are resolved against the working
// directory.
//
// Shared objects (.so) are opened as Go plugins; .yaml, .yml, .json and
// .toml files are read as recipes.
func Load(path string) (Hook, error) {
	if path == "" {
		return nil, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve hook %s: %w", path, err)
	}

	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("load hook: %w", err)
	}

	switch strings.ToLower(filepath.Ext(abs)) {
	case ".so":
		return loadPlugin(abs)
	case ".yaml", ".yml", ".json", ".toml":
		r, err := LoadRecipe(abs)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("load hook %s: %w", abs, ErrUnsupported)
	}
}
