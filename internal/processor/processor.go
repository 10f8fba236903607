package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"mime"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/config"
	"github.com/aliskhannn/thumbnailer/internal/hook"
	"github.com/aliskhannn/thumbnailer/internal/imagefile"
	"github.com/aliskhannn/thumbnailer/internal/model"
)

// Stages at which an invocation can fail.
const (
	StageMetadata = "metadata"
	StageFormat   = "format"
	StageRender   = "render"
	StageSave     = "save"
)

// fileStorage defines the interface for the destination backend
// (local FS or MinIO).
type fileStorage interface {
	Save(ctx context.Context, dst, contentType string, src io.Reader) (string, error)
}

// publisher receives every outcome, e.g. a Kafka producer.
type publisher interface {
	Publish(ctx context.Context, o model.Outcome) error
}

// Error is a failed pipeline invocation.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Processor runs the thumbnail pipeline for one source/destination pair at
// a time. It holds only read-only state and may be used from any number of
// goroutines at once.
type Processor struct {
	resize      config.Resize
	pre, post   hook.Hook
	fileStorage fileStorage
	publisher   publisher
}

// New creates a Processor. pre, post and p may be nil.
func New(resize config.Resize, pre, post hook.Hook, fs fileStorage, p publisher) *Processor {
	return &Processor{
		resize:      resize,
		pre:         pre,
		post:        post,
		fileStorage: fs,
		publisher:   p,
	}
}

// Process opens src, runs the pre-hook, resizes, runs the post-hook and
// writes the result to dst. Failures are logged and reported in the returned
// Outcome; they never escape the call. There is no retry.
func (p *Processor) Process(ctx context.Context, src, dst string) model.Outcome {
	out := model.Outcome{
		ID:          uuid.New(),
		Source:      src,
		Destination: dst,
		StartedAt:   time.Now(),
	}

	log := zlog.Logger.With().
		Str("id", out.ID.String()).
		Str("src", src).
		Str("dst", dst).
		Logger()

	img, location, err := p.run(ctx, src, dst, log)
	out.Duration = time.Since(out.StartedAt)

	if err != nil {
		out.Status = model.StatusFailed
		out.Error = err.Error()
		log.Error().Err(err).Str("kind", "processing").Msgf("%s => %s: ERROR", src, dst)
	} else {
		out.Status = model.StatusProcessed
		out.Location = location
		out.Width = img.Bounds().Dx()
		out.Height = img.Bounds().Dy()
		log.Info().
			Int("width", out.Width).
			Int("height", out.Height).
			Dur("took", out.Duration).
			Msgf("%s => %s: OK", src, dst)
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, out); err != nil {
			log.Error().Err(err).Msg("failed to publish outcome")
		}
	}

	return out
}

func (p *Processor) run(ctx context.Context, src, dst string, log zerolog.Logger) (image.Image, string, error) {
	h := imagefile.Open(src)

	if err := hook.Invoke(hook.StagePre, p.pre, h); err != nil {
		log.Error().Err(err).Str("kind", "hook").Msg("pre hook failed, continuing")
	}

	if err := p.applyResize(h); err != nil {
		return nil, "", &Error{Stage: StageMetadata, Err: err}
	}

	if err := hook.Invoke(hook.StagePost, p.post, h); err != nil {
		log.Error().Err(err).Str("kind", "hook").Msg("post hook failed, continuing")
	}

	log.Debug().Strs("operations", h.Pending()).Msg("rendering")

	format, err := imaging.FormatFromFilename(dst)
	if err != nil {
		return nil, "", &Error{Stage: StageFormat, Err: err}
	}

	buf := bytes.NewBuffer(nil)
	img, err := h.Encode(buf, format)
	if err != nil {
		return nil, "", &Error{Stage: StageRender, Err: err}
	}

	location, err := p.fileStorage.Save(ctx, dst, mime.TypeByExtension(filepath.Ext(dst)), buf)
	if err != nil {
		return nil, "", &Error{Stage: StageSave, Err: err}
	}

	return img, location, nil
}

// applyResize queues the configured size, or the scaled intrinsic width
// when neither width nor height is configured.
func (p *Processor) applyResize(h *imagefile.Handle) error {
	if p.resize.Width > 0 || p.resize.Height > 0 {
		h.Resize(p.resize.Width, p.resize.Height)
		return nil
	}

	meta, err := h.Metadata()
	if err != nil {
		return err
	}

	h.Resize(TargetWidth(meta.Width, p.resize.Scale), 0)

	return nil
}

// TargetWidth scales an intrinsic width, rounding to the nearest pixel and
// never going below one. A fractional product is rounded rather than
// rejected, so a scale that does not divide the width evenly still yields a
// thumbnail.
func TargetWidth(width int, scale float64) int {
	return max(1, int(math.Round(float64(width)*scale)))
}
