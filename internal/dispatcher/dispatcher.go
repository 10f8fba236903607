// Package dispatcher turns batches of watch events into pipeline invocations.
//
// Every qualifying event starts its own goroutine and the dispatcher moves on
// without waiting. There is no limit on in-flight invocations, no
// backpressure and no deduplication of repeated events for the same file.
// The regular-file check runs at dispatch time, so a file removed or replaced
// between the event and the check is simply skipped.
package dispatcher

import (
	"context"
	"os"
	"sync"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/filter"
	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/pathtmpl"
)

// processor runs the pipeline for one source/destination pair.
type processor interface {
	Process(ctx context.Context, src, dst string) model.Outcome
}

// Dispatcher classifies events and fires pipeline invocations.
type Dispatcher struct {
	tmpl      *pathtmpl.Template
	exclusion *filter.Exclusion
	processor processor

	inflight sync.WaitGroup
}

// New creates a Dispatcher. exclusion may be nil.
func New(tmpl *pathtmpl.Template, exclusion *filter.Exclusion, p processor) *Dispatcher {
	return &Dispatcher{
		tmpl:      tmpl,
		exclusion: exclusion,
		processor: p,
	}
}

// HandleBatch is the watch source callback. A batch delivered with an error
// is logged and dropped as a whole.
func (d *Dispatcher) HandleBatch(ctx context.Context, err error, events []model.WatchEvent) {
	if err != nil {
		zlog.Logger.Error().Err(err).Str("kind", "batch").
			Int("events", len(events)).
			Msg("watch batch failed, dropping it")
		return
	}

	started := 0
	for _, ev := range events {
		if d.dispatch(ctx, ev) {
			started++
		}
	}

	zlog.Logger.Debug().Int("events", len(events)).Int("started", started).Msg("batch dispatched")
}

// dispatch starts a pipeline invocation for ev if it qualifies.
func (d *Dispatcher) dispatch(ctx context.Context, ev model.WatchEvent) bool {
	zlog.Logger.Debug().Str("path", ev.Path).Str("type", string(ev.Type)).Msg("event")

	// Only updates count. Files reported solely as created are skipped.
	if ev.Type != model.ChangeUpdated {
		return false
	}

	info, err := os.Stat(ev.Path)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("kind", "classification").
			Str("src", ev.Path).
			Msg("failed to stat file, skipping event")
		return false
	}
	if !info.Mode().IsRegular() {
		return false
	}

	pc := model.Decompose(ev.Path)

	if d.exclusion != nil {
		excluded := d.exclusion.Excluded(pc.BaseName)
		zlog.Logger.Debug().
			Str("pattern", d.exclusion.String()).
			Str("filename", pc.BaseName).
			Bool("excluded", excluded).
			Msg("exclude test")
		if excluded {
			return false
		}
	}

	dst := d.tmpl.Resolve(pc)

	// Started invocations are never cancelled.
	pctx := context.WithoutCancel(ctx)

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.processor.Process(pctx, ev.Path, dst)
	}()

	return true
}

// Wait blocks until every invocation started so far has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}
