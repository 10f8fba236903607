// Package pathtmpl compiles destination path templates.
//
// A template is literal text with {expression} placeholders. An expression
// names a path component and may be followed by filters:
//
//	{directory}/thumbs/{stem|lower}{extension}
//
// Recognised components (with their short aliases) are path/fullPath, root,
// dir/directory, base/baseName, ext/extension and name/stem. Filters are
// upper and lower. A brace without a matching close brace, and an empty
// pair "{}", are copied to the output as is.
package pathtmpl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aliskhannn/thumbnailer/internal/model"
)

var (
	// ErrUnknownField is returned by Compile for an unrecognised {field}.
	ErrUnknownField = errors.New("unknown template field")
	// ErrUnknownFilter is returned by Compile for an unrecognised |filter.
	ErrUnknownFilter = errors.New("unknown template filter")
)

type segment func(p model.DecomposedPath) string

var fields = map[string]segment{
	"path":      func(p model.DecomposedPath) string { return p.FullPath },
	"fullPath":  func(p model.DecomposedPath) string { return p.FullPath },
	"root":      func(p model.DecomposedPath) string { return p.Root },
	"dir":       func(p model.DecomposedPath) string { return p.Directory },
	"directory": func(p model.DecomposedPath) string { return p.Directory },
	"base":      func(p model.DecomposedPath) string { return p.BaseName },
	"baseName":  func(p model.DecomposedPath) string { return p.BaseName },
	"ext":       func(p model.DecomposedPath) string { return p.Extension },
	"extension": func(p model.DecomposedPath) string { return p.Extension },
	"name":      func(p model.DecomposedPath) string { return p.Stem },
	"stem":      func(p model.DecomposedPath) string { return p.Stem },
}

var filters = map[string]func(string) string{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// Template is a compiled destination template. It holds no mutable state
// and is safe for concurrent use.
type Template struct {
	source   string
	segments []segment
}

// Compile parses text into a Template.
func Compile(text string) (*Template, error) {
	t := &Template{source: text}

	rest := text
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			t.literal(rest)
			break
		}

		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			t.literal(rest)
			break
		}
		end += open

		// "{{stem}" keeps the outer brace as text.
		if inner := strings.LastIndexByte(rest[open:end], '{'); inner > 0 {
			open += inner
		}

		t.literal(rest[:open])

		expr := strings.TrimSpace(rest[open+1 : end])
		if expr == "" {
			t.literal(rest[open : end+1])
			rest = rest[end+1:]
			continue
		}

		seg, err := compileExpr(expr)
		if err != nil {
			return nil, fmt.Errorf("compile template %q: %w", text, err)
		}
		t.segments = append(t.segments, seg)

		rest = rest[end+1:]
	}

	return t, nil
}

func compileExpr(expr string) (segment, error) {
	parts := strings.Split(expr, "|")

	name := strings.TrimSpace(parts[0])
	field, ok := fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}

	chain := make([]func(string) string, 0, len(parts)-1)
	for _, f := range parts[1:] {
		f = strings.TrimSpace(f)
		fn, ok := filters[f]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, f)
		}
		chain = append(chain, fn)
	}

	if len(chain) == 0 {
		return field, nil
	}

	return func(p model.DecomposedPath) string {
		v := field(p)
		for _, fn := range chain {
			v = fn(v)
		}
		return v
	}, nil
}

func (t *Template) literal(s string) {
	if s == "" {
		return
	}
	t.segments = append(t.segments, func(model.DecomposedPath) string { return s })
}

// Resolve renders the destination path for p.
func (t *Template) Resolve(p model.DecomposedPath) string {
	var b strings.Builder
	for _, seg := range t.segments {
		b.WriteString(seg(p))
	}
	return b.String()
}

// String returns the template source.
func (t *Template) String() string {
	return t.source
}
