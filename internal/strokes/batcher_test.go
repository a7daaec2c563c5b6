package strokes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorbox-backend/internal/model"
	"tutorbox-backend/internal/notify"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]model.DrawingStroke
	fail    bool
}

func (f *fakeStore) InsertStrokes(_ context.Context, rows []model.DrawingStroke) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection refused")
	}
	f.batches = append(f.batches, append([]model.DrawingStroke(nil), rows...))
	return nil
}

func (f *fakeStore) calls() [][]model.DrawingStroke {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]model.DrawingStroke(nil), f.batches...)
}

func (f *fakeStore) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func TestQueue_BatchesStrokesAfterQuietPeriod(t *testing.T) {
	store := &fakeStore{}
	b := New(store, 7)
	b.Bind(42)

	for i := 0; i < 3; i++ {
		b.Queue([]byte(`{"type":"path"}`), "pen", "#000000", 3)
		time.Sleep(150 * time.Millisecond)
	}
	assert.Empty(t, store.calls())

	require.Eventually(t, func() bool { return len(store.calls()) == 1 }, 3*time.Second, 20*time.Millisecond)

	batch := store.calls()[0]
	require.Len(t, batch, 3)
	for _, row := range batch {
		assert.Equal(t, int64(42), row.SlideID)
		assert.Equal(t, int64(7), row.UserID)
		assert.Equal(t, "pen", row.ToolType)
		assert.Equal(t, "#000000", row.Color)
		assert.Equal(t, 3.0, row.Size)
	}
	assert.Equal(t, 0, b.Pending())
}

func TestFlush_WritesImmediatelyAndTimerBecomesNoop(t *testing.T) {
	store := &fakeStore{}
	b := New(store, 1, WithDelay(100*time.Millisecond))
	b.Bind(5)

	b.Queue([]byte(`{}`), "pen", "#ff0000", 2)
	require.NoError(t, b.Flush(context.Background()))
	require.Len(t, store.calls(), 1)

	time.Sleep(300 * time.Millisecond)
	assert.Len(t, store.calls(), 1)
}

func TestFlush_DisarmsDebounceTimer(t *testing.T) {
	store := &fakeStore{}
	b := New(store, 1, WithDelay(time.Hour))
	var mu sync.Mutex
	var armed func()
	b.debounced = func(f func()) {
		mu.Lock()
		armed = f
		mu.Unlock()
	}
	b.Bind(5)

	b.Queue([]byte(`{}`), "pen", "#ff0000", 2)
	require.NoError(t, b.Flush(context.Background()))
	require.Len(t, store.calls(), 1)

	// 플러시 이후 남은 획이 있어도 해제된 타이머는 저장하지 않는다
	b.mu.Lock()
	b.pending = append(b.pending, PendingStroke{SlideID: 5, StrokeData: []byte(`{}`)})
	b.mu.Unlock()

	mu.Lock()
	fire := armed
	mu.Unlock()
	require.NotNil(t, fire)
	fire()

	assert.Len(t, store.calls(), 1)
	assert.Equal(t, 1, b.Pending())
}

func TestFlush_EmptyIsNoop(t *testing.T) {
	store := &fakeStore{}
	b := New(store, 1)

	require.NoError(t, b.Flush(context.Background()))
	assert.Empty(t, store.calls())
}

func TestQueue_CapturesSlideAtQueueTime(t *testing.T) {
	store := &fakeStore{}
	b := New(store, 1, WithDelay(time.Hour))

	b.Bind(1)
	b.Queue([]byte(`{}`), "pen", "#000000", 1)
	b.Bind(2)
	b.Queue([]byte(`{}`), "pen", "#000000", 1)

	require.NoError(t, b.Flush(context.Background()))
	batch := store.calls()[0]
	require.Len(t, batch, 2)
	assert.Equal(t, int64(1), batch[0].SlideID)
	assert.Equal(t, int64(2), batch[1].SlideID)
}

func TestQueue_WithoutSlideIsDropped(t *testing.T) {
	b := New(&fakeStore{}, 1, WithDelay(time.Hour))
	b.Queue([]byte(`{}`), "pen", "#000000", 1)
	assert.Equal(t, 0, b.Pending())
}

func TestFlush_FailureDropsBatchAndWarns(t *testing.T) {
	store := &fakeStore{fail: true}
	rec := &notify.Recorder{}
	b := New(store, 1, WithDelay(time.Hour), WithNotifier(rec))
	b.Bind(3)

	b.Queue([]byte(`{}`), "pen", "#000000", 1)
	err := b.Flush(context.Background())
	require.Error(t, err)

	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 1, rec.Count(notify.LevelWarning))
	assert.Contains(t, rec.Toasts()[0].Message, "local work is preserved")
}

func TestFlush_FailureRequeuesWhenConfigured(t *testing.T) {
	store := &fakeStore{fail: true}
	rec := &notify.Recorder{}
	b := New(store, 1, WithDelay(50*time.Millisecond), WithNotifier(rec), WithFailurePolicy(RequeueOnFailure))
	b.Bind(3)

	b.Queue([]byte(`{"n":1}`), "pen", "#000000", 1)
	require.Error(t, b.Flush(context.Background()))
	assert.Equal(t, 1, b.Pending())

	store.setFail(false)
	require.Eventually(t, func() bool { return len(store.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"n":1}`, store.calls()[0][0].StrokeData)
}
