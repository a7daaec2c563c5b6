package slides

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorbox-backend/internal/model"
	"tutorbox-backend/internal/notify"
)

type memStore struct {
	mu      sync.Mutex
	nextID  int64
	slides  map[int64]model.Slide
	strokes map[int64][]model.DrawingStroke
	failAll bool
}

func newMemStore() *memStore {
	return &memStore{slides: map[int64]model.Slide{}, strokes: map[int64][]model.DrawingStroke{}}
}

func (m *memStore) ListSlides(_ context.Context, lessonID int64) ([]model.Slide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Slide
	for id := int64(1); id <= m.nextID; id++ {
		if s, ok := m.slides[id]; ok && s.LessonID == lessonID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) CreateSlide(_ context.Context, lessonID int64, order int, data string) (*model.Slide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errors.New("db down")
	}
	m.nextID++
	s := model.Slide{ID: m.nextID, LessonID: lessonID, OrderIndex: order, CanvasData: data}
	m.slides[s.ID] = s
	return &s, nil
}

func (m *memStore) UpdateSlideCanvas(_ context.Context, id int64, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.slides[id]
	s.CanvasData = data
	m.slides[id] = s
	return nil
}

func (m *memStore) DeleteSlide(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slides, id)
	delete(m.strokes, id)
	return nil
}

func (m *memStore) ListStrokes(_ context.Context, id int64) ([]model.DrawingStroke, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strokes[id], nil
}

type fakeCanvas struct {
	loads []string
}

func (f *fakeCanvas) Load(snapshot []byte) error {
	f.loads = append(f.loads, string(snapshot))
	return nil
}

type fakeSink struct {
	flushes int
	bound   int64
	store   *memStore
	pending []model.DrawingStroke
}

func (f *fakeSink) Flush(context.Context) error {
	f.flushes++
	if f.store != nil {
		f.store.mu.Lock()
		for _, st := range f.pending {
			f.store.strokes[st.SlideID] = append(f.store.strokes[st.SlideID], st)
		}
		f.store.mu.Unlock()
	}
	f.pending = nil
	return nil
}

func (f *fakeSink) Bind(id int64) { f.bound = id }

func (f *fakeSink) queue(color string) {
	f.pending = append(f.pending, model.DrawingStroke{SlideID: f.bound, Color: color})
}

func setup(t *testing.T, n int) (*Collection, *memStore, *fakeCanvas, *fakeSink) {
	t.Helper()
	store := newMemStore()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := store.CreateSlide(ctx, 1, i, `{"n":`+string(rune('0'+i))+`}`)
		require.NoError(t, err)
	}
	canvas, sink := &fakeCanvas{}, &fakeSink{}
	c := New(1, store, canvas, sink)
	require.NoError(t, c.Load(ctx))
	c.Wait()
	return c, store, canvas, sink
}

func TestLoad_CreatesFirstSlideWhenEmpty(t *testing.T) {
	c, store, canvas, _ := setup(t, 0)

	require.Len(t, c.Slides(), 1)
	assert.Equal(t, 0, c.Slides()[0].OrderIndex)
	assert.Equal(t, model.EmptyCanvas, c.Slides()[0].CanvasData)
	assert.Equal(t, []string{"{}"}, canvas.loads)
	assert.Len(t, store.slides, 1)
}

func TestSelect_FlushesThenLoadsAndReadsStrokes(t *testing.T) {
	c, store, canvas, sink := setup(t, 3)
	store.strokes[3] = []model.DrawingStroke{{ID: 9, SlideID: 3, Color: "#000000"}}
	flushesBefore := sink.flushes

	require.NoError(t, c.Select(context.Background(), 2))
	c.Wait()

	assert.Equal(t, flushesBefore+1, sink.flushes)
	assert.Equal(t, int64(3), sink.bound)
	assert.Equal(t, `{"n":2}`, canvas.loads[len(canvas.loads)-1])
	assert.Equal(t, 2, c.CurrentIndex())

	rows, ok := c.LoadedStrokes(3)
	require.True(t, ok)
	assert.Len(t, rows, 1)

	assert.ErrorIs(t, c.Select(context.Background(), 3), ErrIndexOutOfRange)
	assert.ErrorIs(t, c.Select(context.Background(), -1), ErrIndexOutOfRange)
}

func TestAdd_UsesCountAsOrderIndex(t *testing.T) {
	c, _, _, _ := setup(t, 2)

	s, err := c.Add(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.OrderIndex)
	assert.Len(t, c.Slides(), 3)
	assert.Equal(t, 0, c.CurrentIndex())
}

func TestDelete_LastSlideClampsIndex(t *testing.T) {
	c, _, canvas, _ := setup(t, 3)
	ctx := context.Background()
	require.NoError(t, c.Select(ctx, 2))

	require.NoError(t, c.Delete(ctx, 3))
	c.Wait()

	assert.Equal(t, 1, c.CurrentIndex())
	assert.Equal(t, `{"n":1}`, canvas.loads[len(canvas.loads)-1])

	// 삭제 후 order_index 는 다시 매기지 않는다
	s, err := c.Add(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.OrderIndex)
}

func TestDelete_CurrentSlideWithQueuedStrokesLeavesNoOrphans(t *testing.T) {
	c, store, _, sink := setup(t, 2)
	sink.store = store
	ctx := context.Background()

	require.NoError(t, c.Select(ctx, 1))
	c.Wait()
	require.Equal(t, int64(2), sink.bound)
	sink.queue("#ff0000")

	require.NoError(t, c.Delete(ctx, 2))
	c.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.strokes[2])
	_, exists := store.slides[2]
	assert.False(t, exists)
	assert.Equal(t, int64(1), sink.bound)
}

func TestDelete_OnlySlideLeavesIndexZero(t *testing.T) {
	c, _, _, _ := setup(t, 1)

	require.NoError(t, c.Delete(context.Background(), 1))
	assert.Equal(t, 0, c.CurrentIndex())
	_, ok := c.Current()
	assert.False(t, ok)

	assert.ErrorIs(t, c.Delete(context.Background(), 1), ErrSlideNotFound)
}

func TestDuplicate_AppendsCopyAtEnd(t *testing.T) {
	c, _, _, _ := setup(t, 3)

	dup, err := c.Duplicate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, `{"n":0}`, dup.CanvasData)
	assert.Equal(t, 3, dup.OrderIndex)
	assert.Equal(t, dup.ID, c.Slides()[3].ID)

	_, err = c.Duplicate(context.Background(), 99)
	assert.ErrorIs(t, err, ErrSlideNotFound)
}

func TestSaveCurrent_OverwritesCanvas(t *testing.T) {
	c, store, _, _ := setup(t, 2)

	require.NoError(t, c.SaveCurrent(context.Background(), []byte(`{"objects":[]}`)))
	assert.Equal(t, `{"objects":[]}`, store.slides[1].CanvasData)
	cur, _ := c.Current()
	assert.Equal(t, `{"objects":[]}`, cur.CanvasData)
}

func TestAdd_FailureRaisesToast(t *testing.T) {
	store := newMemStore()
	rec := &notify.Recorder{}
	c := New(1, store, &fakeCanvas{}, &fakeSink{}, WithNotifier(rec))
	require.NoError(t, c.Load(context.Background()))
	c.Wait()

	store.failAll = true
	_, err := c.Add(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, rec.Count(notify.LevelError))
}
