package hook

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/spf13/viper"

	"github.com/aliskhannn/thumbnailer/internal/imagefile"
)

// ErrInvalidStep is returned when a recipe step has an unknown op or bad arguments.
var ErrInvalidStep = errors.New("invalid recipe step")

// Step is one operation of a recipe. Only the fields relevant to Op are read.
type Step struct {
	Op     string  `mapstructure:"op"`
	Sigma  float64 `mapstructure:"sigma"`  // blur, sharpen
	Amount float64 `mapstructure:"amount"` // brightness, contrast, saturation (percent), gamma
	Angle  float64 `mapstructure:"angle"`  // rotate, degrees counter-clockwise
	Width  int     `mapstructure:"width"`  // crop_center, fit
	Height int     `mapstructure:"height"` // crop_center, fit
	Text   string  `mapstructure:"text"`   // watermark
	Font   string  `mapstructure:"font"`   // watermark, path to a TrueType font
	Size   float64 `mapstructure:"size"`   // watermark font size in points
	Margin float64 `mapstructure:"margin"` // watermark distance from the corner
}

// Recipe is a declarative hook: a fixed list of operations queued on every
// handle it is applied to. A Recipe is immutable and safe for concurrent use.
type Recipe struct {
	path  string
	steps []Step
	ops   []opFunc
}

type recipeFile struct {
	Operations []Step `mapstructure:"operations"`
}

// LoadRecipe reads a recipe file in any format viper understands:
//
//	operations:
//	  - op: grayscale
//	  - op: watermark
//	    text: "(c) example"
func LoadRecipe(path string) (*Recipe, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read recipe %s: %w", path, err)
	}

	var rf recipeFile
	if err := v.Unmarshal(&rf); err != nil {
		return nil, fmt.Errorf("unmarshal recipe %s: %w", path, err)
	}

	return NewRecipe(path, rf.Operations)
}

// NewRecipe validates steps and builds a Recipe. Relative font paths are
// resolved against the directory of path.
func NewRecipe(path string, steps []Step) (*Recipe, error) {
	r := &Recipe{path: path, steps: make([]Step, 0, len(steps))}

	for i, s := range steps {
		if s.Font != "" && !filepath.IsAbs(s.Font) {
			s.Font = filepath.Join(filepath.Dir(path), s.Font)
		}

		fn, err := compileStep(s)
		if err != nil {
			return nil, fmt.Errorf("recipe %s: step %d: %w", path, i, err)
		}

		r.steps = append(r.steps, s)
		r.ops = append(r.ops, fn)
	}

	return r, nil
}

// Apply queues the recipe's operations on h.
func (r *Recipe) Apply(h *imagefile.Handle) error {
	for i, s := range r.steps {
		h.Queue(s.Op, r.ops[i])
	}

	return nil
}

// Steps returns a copy of the recipe's steps.
func (r *Recipe) Steps() []Step {
	return append([]Step(nil), r.steps...)
}

type opFunc = func(img image.Image) (image.Image, error)

func pure(fn func(img image.Image) *image.NRGBA) opFunc {
	return func(img image.Image) (image.Image, error) {
		return fn(img), nil
	}
}

func compileStep(s Step) (opFunc, error) {
	switch s.Op {
	case "grayscale":
		return pure(func(img image.Image) *image.NRGBA { return imaging.Grayscale(img) }), nil
	case "invert":
		return pure(func(img image.Image) *image.NRGBA { return imaging.Invert(img) }), nil
	case "flip_h":
		return pure(func(img image.Image) *image.NRGBA { return imaging.FlipH(img) }), nil
	case "flip_v":
		return pure(func(img image.Image) *image.NRGBA { return imaging.FlipV(img) }), nil
	case "blur", "sharpen":
		sigma := s.Sigma
		if sigma == 0 {
			sigma = 1
		}
		if sigma < 0 {
			return nil, fmt.Errorf("%w: %s sigma must be positive", ErrInvalidStep, s.Op)
		}
		if s.Op == "blur" {
			return pure(func(img image.Image) *image.NRGBA { return imaging.Blur(img, sigma) }), nil
		}
		return pure(func(img image.Image) *image.NRGBA { return imaging.Sharpen(img, sigma) }), nil
	case "brightness", "contrast", "saturation":
		if s.Amount < -100 || s.Amount > 100 {
			return nil, fmt.Errorf("%w: %s amount must be within [-100, 100]", ErrInvalidStep, s.Op)
		}
		amount := s.Amount
		switch s.Op {
		case "brightness":
			return pure(func(img image.Image) *image.NRGBA { return imaging.AdjustBrightness(img, amount) }), nil
		case "contrast":
			return pure(func(img image.Image) *image.NRGBA { return imaging.AdjustContrast(img, amount) }), nil
		default:
			return pure(func(img image.Image) *image.NRGBA { return imaging.AdjustSaturation(img, amount) }), nil
		}
	case "gamma":
		if s.Amount <= 0 {
			return nil, fmt.Errorf("%w: gamma amount must be positive", ErrInvalidStep)
		}
		gamma := s.Amount
		return pure(func(img image.Image) *image.NRGBA { return imaging.AdjustGamma(img, gamma) }), nil
	case "rotate":
		angle := s.Angle
		return pure(func(img image.Image) *image.NRGBA { return imaging.Rotate(img, angle, color.Transparent) }), nil
	case "crop_center", "fit":
		if s.Width <= 0 || s.Height <= 0 {
			return nil, fmt.Errorf("%w: %s needs positive width and height", ErrInvalidStep, s.Op)
		}
		w, h := s.Width, s.Height
		if s.Op == "fit" {
			return pure(func(img image.Image) *image.NRGBA { return imaging.Fit(img, w, h, imaging.Lanczos) }), nil
		}
		return pure(func(img image.Image) *image.NRGBA { return imaging.CropCenter(img, w, h) }), nil
	case "watermark":
		return watermark(s)
	case "":
		return nil, fmt.Errorf("%w: missing op", ErrInvalidStep)
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidStep, s.Op)
	}
}

// watermark draws text in the bottom-right corner.
func watermark(s Step) (opFunc, error) {
	text := s.Text
	if text == "" {
		text = "Watermark"
	}

	margin := s.Margin
	if margin == 0 {
		margin = 10
	}

	if s.Font != "" {
		if _, err := gg.LoadFontFace(s.Font, 12); err != nil {
			return nil, fmt.Errorf("%w: failed to load font: %v", ErrInvalidStep, err)
		}
	}

	return func(img image.Image) (image.Image, error) {
		dc := gg.NewContextForImage(img)
		dc.SetColor(color.White)

		if s.Font != "" {
			size := s.Size
			if size <= 0 {
				size = float64(dc.Width()) * 0.05 // 5% of the image width
			}
			// Faces cache glyphs and are not shared between goroutines.
			if err := dc.LoadFontFace(s.Font, size); err != nil {
				return nil, fmt.Errorf("failed to load font: %w", err)
			}
		}

		x := float64(dc.Width()) - margin
		y := float64(dc.Height()) - margin
		dc.DrawStringAnchored(text, x, y, 1, 1)

		return dc.Image(), nil
	}, nil
}
