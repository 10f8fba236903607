package dispatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/thumbnailer/internal/filter"
	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/pathtmpl"
)

type call struct {
	src, dst string
}

type fakeProcessor struct {
	mu      sync.Mutex
	calls   []call
	release chan struct{}
}

func (f *fakeProcessor) Process(ctx context.Context, src, dst string) model.Outcome {
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{src: src, dst: dst})

	return model.Outcome{Source: src, Destination: dst, Status: model.StatusProcessed}
}

func (f *fakeProcessor) sorted() []call {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := append([]call(nil), f.calls...)
	sort.Slice(out, func(i, j int) bool { return out[i].src < out[j].src })
	return out
}

func newDispatcher(t *testing.T, tmplText, exclude string, p processor) *Dispatcher {
	t.Helper()

	tmpl, err := pathtmpl.Compile(tmplText)
	require.NoError(t, err)

	ex, err := filter.New(exclude)
	require.NoError(t, err)

	return New(tmpl, ex, p)
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	return path
}

func TestHandleBatch_OnlyUpdatesQualify(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "photo.png")

	fp := &fakeProcessor{}
	d := newDispatcher(t, "{directory}/thumb_{stem}{extension}", "", fp)

	d.HandleBatch(context.Background(), nil, []model.WatchEvent{
		{Path: path, Type: model.ChangeCreated},
		{Path: path, Type: model.ChangeDeleted},
		{Path: path, Type: model.ChangeUnknown},
	})
	d.Wait()
	assert.Empty(t, fp.sorted())

	d.HandleBatch(context.Background(), nil, []model.WatchEvent{{Path: path, Type: model.ChangeUpdated}})
	d.Wait()
	assert.Equal(t, []call{{src: path, dst: filepath.Join(dir, "thumb_photo.png")}}, fp.sorted())
}

func TestHandleBatch_ExcludedNamesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	hidden := touch(t, dir, ".hidden.png")
	visible := touch(t, dir, "photo.png")

	fp := &fakeProcessor{}
	d := newDispatcher(t, "{directory}/thumb_{stem}{extension}", `^\.`, fp)

	d.HandleBatch(context.Background(), nil, []model.WatchEvent{
		{Path: hidden, Type: model.ChangeUpdated},
		{Path: visible, Type: model.ChangeUpdated},
	})
	d.Wait()

	assert.Equal(t, []call{{src: visible, dst: filepath.Join(dir, "thumb_photo.png")}}, fp.sorted())
}

func TestHandleBatch_BatchErrorDropsEverything(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "photo.png")

	fp := &fakeProcessor{}
	d := newDispatcher(t, "{directory}/thumb_{stem}{extension}", "", fp)

	d.HandleBatch(context.Background(), errors.New("watch overflow"), []model.WatchEvent{
		{Path: path, Type: model.ChangeUpdated},
	})
	d.Wait()

	assert.Empty(t, fp.sorted())
}

func TestHandleBatch_MissingFilesAndDirectoriesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub.png")
	require.NoError(t, os.Mkdir(sub, 0o755))
	path := touch(t, dir, "photo.png")

	fp := &fakeProcessor{}
	d := newDispatcher(t, "/out/{stem}{extension}", "", fp)

	d.HandleBatch(context.Background(), nil, []model.WatchEvent{
		{Path: filepath.Join(dir, "deleted-meanwhile.png"), Type: model.ChangeUpdated},
		{Path: sub, Type: model.ChangeUpdated},
		{Path: path, Type: model.ChangeUpdated},
	})
	d.Wait()

	assert.Equal(t, []call{{src: path, dst: "/out/photo.png"}}, fp.sorted())
}

func TestHandleBatch_DoesNotWaitForInvocations(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a.png")
	b := touch(t, dir, "b.png")

	fp := &fakeProcessor{release: make(chan struct{})}
	d := newDispatcher(t, "/out/{base}", "", fp)

	done := make(chan struct{})
	go func() {
		d.HandleBatch(context.Background(), nil, []model.WatchEvent{
			{Path: a, Type: model.ChangeUpdated},
			{Path: b, Type: model.ChangeUpdated},
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleBatch blocked on running invocations")
	}

	assert.Empty(t, fp.sorted())
	close(fp.release)
	d.Wait()

	assert.Equal(t, []call{
		{src: a, dst: "/out/a.png"},
		{src: b, dst: "/out/b.png"},
	}, fp.sorted())
}

func TestHandleBatch_RepeatedEventsAreNotDeduplicated(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "photo.png")

	fp := &fakeProcessor{}
	d := newDispatcher(t, "/out/{base}", "", fp)

	d.HandleBatch(context.Background(), nil, []model.WatchEvent{
		{Path: path, Type: model.ChangeUpdated},
		{Path: path, Type: model.ChangeUpdated},
	})
	d.Wait()

	assert.Len(t, fp.sorted(), 2)
}

type ctxProcessor struct {
	errs chan error
}

func (c *ctxProcessor) Process(ctx context.Context, src, dst string) model.Outcome {
	time.Sleep(20 * time.Millisecond)
	c.errs <- ctx.Err()
	return model.Outcome{}
}

func TestHandleBatch_InvocationsOutliveTheContext(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "photo.png")

	cp := &ctxProcessor{errs: make(chan error, 1)}
	d := newDispatcher(t, "/out/{base}", "", cp)

	ctx, cancel := context.WithCancel(context.Background())
	d.HandleBatch(ctx, nil, []model.WatchEvent{{Path: path, Type: model.ChangeUpdated}})
	cancel()
	d.Wait()

	assert.NoError(t, <-cp.errs)
}
