package hook

import (
	"fmt"
	"plugin"

	"github.com/aliskhannn/thumbnailer/internal/imagefile"
)

// PluginSymbol is the name a plugin must export.
const PluginSymbol = "Hook"

// loadPlugin opens a Go plugin exporting
//
//	func Hook(h *imagefile.Handle) error
//
// or a variable of that type, or a value implementing Hook.
func loadPlugin(path string) (Hook, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", path, err)
	}

	sym, err := p.Lookup(PluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", path, err)
	}

	switch v := sym.(type) {
	case func(*imagefile.Handle) error:
		return Func(v), nil
	case *func(*imagefile.Handle) error:
		return Func(*v), nil
	case Hook:
		return v, nil
	default:
		return nil, fmt.Errorf("plugin %s: symbol %s has type %T: %w", path, PluginSymbol, sym, ErrUnsupported)
	}
}
