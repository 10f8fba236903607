// Package imagefile provides a lazy image handle with a chain of pending
// operations, in the spirit of a streaming image pipeline: nothing is decoded
// until the chain is rendered.
package imagefile

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
)

// ErrEmptyImage is returned when an operation yields a nil or zero-sized image.
var ErrEmptyImage = errors.New("operation produced an empty image")

// ErrOperationPanic is returned when a queued operation panics while rendering.
var ErrOperationPanic = errors.New("operation panicked")

// Operation transforms a decoded image.
type Operation struct {
	Name  string
	Apply func(img image.Image) (image.Image, error)
}

// Metadata holds the intrinsic properties read from the image header.
type Metadata struct {
	Width  int
	Height int
	Format string
}

// Handle refers to an image file and the operations queued for it.
// A Handle belongs to a single pipeline invocation and is not safe for
// concurrent use.
type Handle struct {
	path string
	ops  []Operation
	meta *Metadata
}

// Open returns a handle for the file at path without reading it.
func Open(path string) *Handle {
	return &Handle{path: path}
}

// Path returns the source path.
func (h *Handle) Path() string {
	return h.path
}

// Metadata reads the image header. The pixel data is not decoded.
func (h *Handle) Metadata() (Metadata, error) {
	if h.meta != nil {
		return *h.meta, nil
	}

	f, err := os.Open(h.path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read image header: %w", err)
	}

	h.meta = &Metadata{Width: cfg.Width, Height: cfg.Height, Format: format}

	return *h.meta, nil
}

// Queue appends an operation to the pending chain.
func (h *Handle) Queue(name string, fn func(img image.Image) (image.Image, error)) {
	h.ops = append(h.ops, Operation{Name: name, Apply: fn})
}

// Resize queues a resize. A zero width or height is derived from the other
// so the aspect ratio is kept. When both are set the image is scaled to cover
// the box and cropped around the centre. Resize(0, 0) queues nothing.
func (h *Handle) Resize(width, height int) {
	switch {
	case width <= 0 && height <= 0:
		return
	case width > 0 && height > 0:
		h.Queue(fmt.Sprintf("resize(%dx%d)", width, height), func(img image.Image) (image.Image, error) {
			return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos), nil
		})
	default:
		h.Queue(fmt.Sprintf("resize(%dx%d)", width, height), func(img image.Image) (image.Image, error) {
			return imaging.Resize(img, max(width, 0), max(height, 0), imaging.Lanczos), nil
		})
	}
}

// Pending returns the names of the queued operations in order.
func (h *Handle) Pending() []string {
	names := make([]string, 0, len(h.ops))
	for _, op := range h.ops {
		names = append(names, op.Name)
	}
	return names
}

// Render decodes the source and applies the pending chain.
func (h *Handle) Render() (image.Image, error) {
	img, err := imaging.Open(h.path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	for _, op := range h.ops {
		img, err = apply(op, img)
		if err != nil {
			return nil, fmt.Errorf("operation %s: %w", op.Name, err)
		}
		if img == nil || img.Bounds().Empty() {
			return nil, fmt.Errorf("operation %s: %w", op.Name, ErrEmptyImage)
		}
	}

	return img, nil
}

// apply runs a single operation, turning a panic into ErrOperationPanic.
func apply(op Operation, img image.Image) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrOperationPanic, r)
		}
	}()

	return op.Apply(img)
}

// Encode renders the handle and writes it to w in the given format.
func (h *Handle) Encode(w io.Writer, format imaging.Format) (image.Image, error) {
	img, err := h.Render()
	if err != nil {
		return nil, err
	}

	if err := imaging.Encode(w, img, format); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return img, nil
}
