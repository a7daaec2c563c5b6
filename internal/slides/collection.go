// Package slides keeps the ordered slide list of one lesson in step with the
// slides table and drives slide switching on the canvas.
package slides

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/model"
	"tutorbox-backend/internal/notify"
)

const strokeLoadTimeout = 10 * time.Second

var (
	ErrSlideNotFound   = errors.New("slide not found")
	ErrIndexOutOfRange = errors.New("slide index out of range")
	ErrNoCurrentSlide  = errors.New("no current slide")
)

// Store slides / drawing_strokes 저장소
type Store interface {
	ListSlides(ctx context.Context, lessonID int64) ([]model.Slide, error)
	CreateSlide(ctx context.Context, lessonID int64, orderIndex int, canvasData string) (*model.Slide, error)
	UpdateSlideCanvas(ctx context.Context, slideID int64, canvasData string) error
	DeleteSlide(ctx context.Context, slideID int64) error
	ListStrokes(ctx context.Context, slideID int64) ([]model.DrawingStroke, error)
}

// Canvas 슬라이드 내용을 받을 캔버스
type Canvas interface {
	Load(snapshot []byte) error
}

// StrokeSink 슬라이드 전환 전에 비워야 하는 획 배처
type StrokeSink interface {
	Flush(ctx context.Context) error
	Bind(slideID int64)
}

// Option Collection 설정
type Option func(*Collection)

func WithNotifier(n notify.Notifier) Option {
	return func(c *Collection) {
		if n != nil {
			c.notifier = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Collection) {
		if l != nil {
			c.log = l
		}
	}
}

// Collection 레슨의 슬라이드 목록
//
// order_index 는 생성 시점의 슬라이드 수로 정해지고 삭제 후에도 다시 매기지 않는다.
type Collection struct {
	lessonID int64
	store    Store
	canvas   Canvas
	strokes  StrokeSink
	notifier notify.Notifier
	log      *logger.Logger

	opMu sync.Mutex

	mu      sync.RWMutex
	slides  []model.Slide
	current int
	loaded  map[int64][]model.DrawingStroke

	bg sync.WaitGroup
}

// New Collection 생성. Load 전까지 비어있다.
func New(lessonID int64, store Store, canvas Canvas, strokes StrokeSink, opts ...Option) *Collection {
	c := &Collection{
		lessonID: lessonID,
		store:    store,
		canvas:   canvas,
		strokes:  strokes,
		notifier: notify.Nop{},
		log:      logger.NewNop(),
		loaded:   make(map[int64][]model.DrawingStroke),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "slides", "lesson_id", lessonID)
	return c
}

// Load DB 에서 슬라이드 목록을 읽고 첫 슬라이드 선택. 비어있으면 하나 만든다.
func (c *Collection) Load(ctx context.Context) error {
	list, err := c.store.ListSlides(ctx, c.lessonID)
	if err != nil {
		return fmt.Errorf("list slides: %w", err)
	}
	if len(list) == 0 {
		first, err := c.store.CreateSlide(ctx, c.lessonID, 0, model.EmptyCanvas)
		if err != nil {
			return fmt.Errorf("create first slide: %w", err)
		}
		list = []model.Slide{*first}
	}

	c.mu.Lock()
	c.slides = list
	c.current = 0
	c.mu.Unlock()

	return c.Select(ctx, 0)
}

// Slides 슬라이드 목록 복사본 (order_index 순)
func (c *Collection) Slides() []model.Slide {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Slide(nil), c.slides...)
}

// Current 현재 슬라이드
func (c *Collection) Current() (model.Slide, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current < 0 || c.current >= len(c.slides) {
		return model.Slide{}, false
	}
	return c.slides[c.current], true
}

func (c *Collection) CurrentIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Add 빈 슬라이드를 끝에 추가 (order_index = 현재 슬라이드 수)
func (c *Collection) Add(ctx context.Context) (model.Slide, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	order := len(c.slides)
	c.mu.RUnlock()

	created, err := c.store.CreateSlide(ctx, c.lessonID, order, model.EmptyCanvas)
	if err != nil {
		c.notifier.Notify(notify.Error("Slide error", "Failed to add a slide."))
		return model.Slide{}, fmt.Errorf("create slide: %w", err)
	}

	c.mu.Lock()
	c.slides = append(c.slides, *created)
	c.mu.Unlock()
	return *created, nil
}

// Select 이전 슬라이드의 획을 먼저 저장한 뒤 index 슬라이드를 캔버스에 올린다.
// 해당 슬라이드의 drawing_strokes 는 백그라운드로 읽어 LoadedStrokes 에 보관한다.
func (c *Collection) Select(ctx context.Context, index int) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.selectLocked(ctx, index)
}

func (c *Collection) selectLocked(ctx context.Context, index int) error {
	c.mu.RLock()
	if index < 0 || index >= len(c.slides) {
		c.mu.RUnlock()
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	c.mu.RUnlock()

	if c.strokes != nil {
		if err := c.strokes.Flush(ctx); err != nil {
			c.log.Warn("stroke flush before slide switch failed", "error", err)
		}
	}

	c.mu.Lock()
	c.current = index
	target := c.slides[index]
	c.mu.Unlock()

	if c.strokes != nil {
		c.strokes.Bind(target.ID)
	}
	if err := c.canvas.Load([]byte(target.CanvasData)); err != nil {
		return fmt.Errorf("load slide %d: %w", target.ID, err)
	}

	c.bg.Add(1)
	go c.loadStrokes(context.WithoutCancel(ctx), target.ID)
	return nil
}

func (c *Collection) loadStrokes(ctx context.Context, slideID int64) {
	defer c.bg.Done()

	ctx, cancel := context.WithTimeout(ctx, strokeLoadTimeout)
	defer cancel()

	rows, err := c.store.ListStrokes(ctx, slideID)
	if err != nil {
		c.log.Warn("failed to load drawing strokes", "slide_id", slideID, "error", err)
		return
	}

	c.mu.Lock()
	c.loaded[slideID] = rows
	c.mu.Unlock()
}

// Delete 슬라이드 삭제. 현재 위치가 끝을 벗어나면 max(0, len-1) 로 당긴다.
func (c *Collection) Delete(ctx context.Context, slideID int64) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	idx := c.indexOf(slideID)
	var before int64
	if c.current >= 0 && c.current < len(c.slides) {
		before = c.slides[c.current].ID
	}
	c.mu.RUnlock()
	if idx < 0 {
		return ErrSlideNotFound
	}

	// 대기 중인 획이 지워질 슬라이드를 가리킬 수 있으므로 삭제 전에 먼저 쓴다
	if c.strokes != nil {
		if err := c.strokes.Flush(ctx); err != nil {
			c.log.Warn("stroke flush before slide delete failed", "slide_id", slideID, "error", err)
		}
	}

	if err := c.store.DeleteSlide(ctx, slideID); err != nil {
		c.notifier.Notify(notify.Error("Slide error", "Failed to delete the slide."))
		return fmt.Errorf("delete slide: %w", err)
	}

	c.mu.Lock()
	c.slides = append(c.slides[:idx:idx], c.slides[idx+1:]...)
	delete(c.loaded, slideID)
	if c.current >= len(c.slides) {
		c.current = max(0, len(c.slides)-1)
	}
	cur := c.current
	changed := len(c.slides) > 0 && c.slides[cur].ID != before
	c.mu.Unlock()

	if changed {
		return c.selectLocked(ctx, cur)
	}
	return nil
}

// Duplicate canvas_data 를 복사한 새 슬라이드를 맨 끝에 추가 (원본 옆이 아님)
func (c *Collection) Duplicate(ctx context.Context, slideID int64) (model.Slide, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	idx := c.indexOf(slideID)
	if idx < 0 {
		c.mu.RUnlock()
		return model.Slide{}, ErrSlideNotFound
	}
	source := c.slides[idx].CanvasData
	order := len(c.slides)
	c.mu.RUnlock()

	created, err := c.store.CreateSlide(ctx, c.lessonID, order, source)
	if err != nil {
		c.notifier.Notify(notify.Error("Slide error", "Failed to duplicate the slide."))
		return model.Slide{}, fmt.Errorf("duplicate slide: %w", err)
	}

	c.mu.Lock()
	c.slides = append(c.slides, *created)
	c.mu.Unlock()
	return *created, nil
}

// SaveCurrent 현재 슬라이드 canvas_data 덮어쓰기 (last-writer-wins)
func (c *Collection) SaveCurrent(ctx context.Context, snapshot []byte) error {
	cur, ok := c.Current()
	if !ok {
		return ErrNoCurrentSlide
	}

	data := string(snapshot)
	if err := c.store.UpdateSlideCanvas(ctx, cur.ID, data); err != nil {
		return fmt.Errorf("save slide %d: %w", cur.ID, err)
	}

	c.mu.Lock()
	if i := c.indexOf(cur.ID); i >= 0 {
		c.slides[i].CanvasData = data
	}
	c.mu.Unlock()
	return nil
}

// LoadedStrokes 선택 시 읽어둔 drawing_strokes (씬과 합치지 않음)
func (c *Collection) LoadedStrokes(slideID int64) ([]model.DrawingStroke, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows, ok := c.loaded[slideID]
	return append([]model.DrawingStroke(nil), rows...), ok
}

// Wait 백그라운드 획 로딩이 끝날 때까지 대기
func (c *Collection) Wait() {
	c.bg.Wait()
}

func (c *Collection) indexOf(slideID int64) int {
	for i, s := range c.slides {
		if s.ID == slideID {
			return i
		}
	}
	return -1
}
