// Package canvas holds the editable whiteboard surface for one slide: the scene
// graph, the active tool and brush, the viewport, and change notification.
package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tutorbox-backend/internal/history"
	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/notify"
	"tutorbox-backend/internal/scene"
)

// Tool 활성 도구
type Tool string

const (
	ToolSelect Tool = "select"
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
	ToolShape  Tool = "shape"
	ToolText   Tool = "text"
	ToolPan    Tool = "pan"
	ToolZoom   Tool = "zoom"
)

// Valid 지원하는 도구인지
func (t Tool) Valid() bool {
	switch t {
	case ToolSelect, ToolPen, ToolEraser, ToolShape, ToolText, ToolPan, ToolZoom:
		return true
	}
	return false
}

const (
	DefaultBrushColor = "#000000"
	DefaultBrushSize  = 3
	MinBrushSize      = 1
	MaxBrushSize      = 100
	// DefaultMaxUploadBytes 업로드 파일 최대 크기 (2MB)
	DefaultMaxUploadBytes = 2 * 1024 * 1024
	defaultFontSize       = 24
	placeLeft             = 100
	placeTop              = 100
)

var (
	ErrInvalidTool         = errors.New("invalid tool")
	ErrInvalidColor        = errors.New("brush color must be #rgb or #rrggbb")
	ErrInvalidBrushSize    = errors.New("brush size must be between 1 and 100")
	ErrInvalidShape        = errors.New("shape must be rect, circle, triangle or line")
	ErrEmptyText           = errors.New("text is empty")
	ErrEmptyPath           = errors.New("path has no points")
	ErrNotDrawing          = errors.New("active tool is not pen or eraser")
	ErrFileTooLarge        = errors.New("file exceeds upload limit")
	ErrUnsupportedFileType = errors.New("only image and pdf files are supported")
)

// Brush 펜 색상/굵기
type Brush struct {
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

// EventKind 변경 이벤트 종류
type EventKind string

const (
	EventAdded    EventKind = "added"
	EventModified EventKind = "modified"
	EventRemoved  EventKind = "removed"
	EventCleared  EventKind = "cleared"
	EventLoaded   EventKind = "loaded"
	EventRestored EventKind = "restored"
)

// ChangeEvent 씬 변경 알림. Snapshot 은 항상 씬 전체 (diff 아님).
type ChangeEvent struct {
	Kind     EventKind       `json:"kind"`
	ObjectID string          `json:"objectId,omitempty"`
	Tool     Tool            `json:"tool"`
	Brush    Brush           `json:"brush"`
	Snapshot json.RawMessage `json:"snapshot"`
	// LastKind/Last 최상단 오브젝트 (획 배칭 판별용)
	LastKind scene.Kind      `json:"-"`
	Last     json.RawMessage `json:"-"`
}

// Option Surface 설정
type Option func(*Surface)

func WithHistory(h *history.Stack) Option {
	return func(s *Surface) { s.history = h }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Surface) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Surface) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Surface) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// Surface 화이트보드 캔버스
//
// opMu 는 변경 작업 전체(이벤트 전달 포함)를 직렬화하고, mu 는 상태 읽기/쓰기를 보호한다.
// 구독자는 이벤트 안에서 상태를 읽을 수 있지만 Surface 를 다시 변경하면 안 된다.
type Surface struct {
	opMu sync.Mutex
	mu   sync.RWMutex

	scene    *scene.Scene
	tool     Tool
	brush    Brush
	view     Viewport
	history  *history.Stack
	notifier notify.Notifier
	log      *logger.Logger

	maxUpload int64
	newID     func() string

	subs    map[int]func(ChangeEvent)
	nextSub int
}

// New 빈 Surface 생성 (펜, 검정, 3px)
func New(opts ...Option) *Surface {
	s := &Surface{
		scene:     scene.New(),
		tool:      ToolPen,
		brush:     Brush{Color: DefaultBrushColor, Size: DefaultBrushSize},
		view:      defaultViewport(),
		notifier:  notify.Nop{},
		log:       logger.NewNop(),
		maxUpload: DefaultMaxUploadBytes,
		newID:     uuid.NewString,
		subs:      make(map[int]func(ChangeEvent)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe 변경 이벤트 구독. 반환된 함수로 해제.
func (s *Surface) Subscribe(fn func(ChangeEvent)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// History Undo/Redo 에 쓰는 히스토리 스택
func (s *Surface) History() *history.Stack {
	return s.history
}

func (s *Surface) Tool() Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tool
}

func (s *Surface) Brush() Brush {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.brush
}

// SetTool 도구 변경
func (s *Surface) SetTool(t Tool) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTool, t)
	}
	s.mu.Lock()
	s.tool = t
	s.mu.Unlock()
	return nil
}

// SetBrushColor 펜 색상 (#rgb / #rrggbb)
func (s *Surface) SetBrushColor(c string) error {
	if _, ok := scene.ParseHexColor(c); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidColor, c)
	}
	s.mu.Lock()
	s.brush.Color = strings.ToLower(c)
	s.mu.Unlock()
	return nil
}

// SetBrushSize 펜 굵기 (1~100)
func (s *Surface) SetBrushSize(size float64) error {
	if size < MinBrushSize || size > MaxBrushSize {
		return fmt.Errorf("%w: %v", ErrInvalidBrushSize, size)
	}
	s.mu.Lock()
	s.brush.Size = size
	s.mu.Unlock()
	return nil
}

// Snapshot 현재 씬 직렬화
func (s *Surface) Snapshot() (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scene.Encode()
}

// Scene 현재 씬 복사본
func (s *Surface) Scene() (*scene.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scene.Clone()
}

// AddShape 도형 추가. 생성된 오브젝트 ID 반환.
func (s *Surface) AddShape(kind scene.Kind) (string, error) {
	if !kind.IsShape() {
		return "", fmt.Errorf("%w: %q", ErrInvalidShape, kind)
	}

	brush := s.Brush()
	id := s.newID()
	base := scene.Base{ID: id, Left: placeLeft, Top: placeTop, Stroke: brush.Color, StrokeWidth: 2}

	var obj scene.Object
	switch kind {
	case scene.KindRect:
		obj = &scene.Rect{Base: base, Width: 100, Height: 80}
	case scene.KindCircle:
		obj = &scene.Circle{Base: base, Radius: 50}
	case scene.KindTriangle:
		obj = &scene.Triangle{Base: base, Width: 100, Height: 100}
	case scene.KindLine:
		obj = &scene.Line{Base: base, X2: placeLeft + 150, Y2: placeTop}
	}

	return id, s.mutate(EventAdded, id, func(sc *scene.Scene) error {
		sc.Append(obj)
		return nil
	})
}

// AddText 텍스트 추가
func (s *Surface) AddText(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	brush := s.Brush()
	id := s.newID()
	obj := &scene.Text{
		Base:     scene.Base{ID: id, Left: placeLeft, Top: placeTop, Fill: brush.Color},
		Text:     text,
		FontSize: defaultFontSize,
	}
	return id, s.mutate(EventAdded, id, func(sc *scene.Scene) error {
		sc.Append(obj)
		return nil
	})
}

// AddPath 펜/지우개 한 획 추가. 지우개 획은 배경색으로 칠한다.
func (s *Surface) AddPath(points []scene.Point) (string, error) {
	if len(points) == 0 {
		return "", ErrEmptyPath
	}

	s.mu.RLock()
	tool, brush, background := s.tool, s.brush, s.scene.Background
	s.mu.RUnlock()

	if tool != ToolPen && tool != ToolEraser {
		return "", fmt.Errorf("%w: %s", ErrNotDrawing, tool)
	}

	id := s.newID()
	pts := append([]scene.Point(nil), points...)
	var path *scene.Path
	if tool == ToolEraser {
		path = scene.NewPath(id, pts, background, brush.Size)
		path.Eraser = true
	} else {
		path = scene.NewPath(id, pts, brush.Color, brush.Size)
	}

	return id, s.mutate(EventAdded, id, func(sc *scene.Scene) error {
		sc.Append(path)
		return nil
	})
}

// ModifyObject 오브젝트 부분 수정
func (s *Surface) ModifyObject(id string, patch scene.Patch) error {
	if patch.Stroke != nil {
		if _, ok := scene.ParseHexColor(*patch.Stroke); !ok {
			return fmt.Errorf("%w: %q", ErrInvalidColor, *patch.Stroke)
		}
	}
	if patch.Fill != nil && *patch.Fill != "" {
		if _, ok := scene.ParseHexColor(*patch.Fill); !ok {
			return fmt.Errorf("%w: %q", ErrInvalidColor, *patch.Fill)
		}
	}

	return s.mutate(EventModified, id, func(sc *scene.Scene) error {
		obj, ok := sc.Find(id)
		if !ok {
			return scene.ErrNotFound
		}
		scene.Apply(obj, patch)
		return nil
	})
}

// RemoveObject 오브젝트 삭제
func (s *Surface) RemoveObject(id string) error {
	return s.mutate(EventRemoved, id, func(sc *scene.Scene) error {
		_, err := sc.Remove(id)
		return err
	})
}

// Clear 모든 오브젝트 삭제 (배경 유지)
func (s *Surface) Clear() error {
	return s.mutate(EventCleared, "", func(sc *scene.Scene) error {
		sc.Objects = nil
		return nil
	})
}

// Load 저장된 canvas_data 로 씬 교체 (슬라이드 전환)
func (s *Surface) Load(snapshot []byte) error {
	return s.replace(EventLoaded, snapshot)
}

// Undo 히스토리에서 이전 스냅샷 복원. 더 없으면 false.
func (s *Surface) Undo() (bool, error) {
	if s.history == nil {
		return false, nil
	}
	snap, ok := s.history.Undo()
	if !ok {
		return false, nil
	}
	return true, s.replace(EventRestored, snap)
}

// Redo 히스토리에서 다음 스냅샷 복원. 끝이면 false.
func (s *Surface) Redo() (bool, error) {
	if s.history == nil {
		return false, nil
	}
	snap, ok := s.history.Redo()
	if !ok {
		return false, nil
	}
	return true, s.replace(EventRestored, snap)
}

// ExportAs 현재 씬을 포맷에 맞게 w 로 출력
func (s *Surface) ExportAs(w io.Writer, f scene.Format, opts scene.ExportOptions) error {
	sc, err := s.Scene()
	if err != nil {
		s.fail("Export failed", "Could not read the canvas.", err)
		return err
	}
	if err := scene.Export(w, sc, f, opts); err != nil {
		s.fail("Export failed", "Could not export the canvas.", err)
		return err
	}
	return nil
}

func (s *Surface) replace(kind EventKind, snapshot []byte) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	next, err := scene.Decode(snapshot)
	if err != nil {
		s.fail("Canvas error", "Failed to load the canvas.", err)
		return err
	}
	data, err := next.Encode()
	if err != nil {
		s.fail("Canvas error", "Failed to load the canvas.", err)
		return err
	}

	s.mu.Lock()
	s.scene = next
	ev, subs := s.eventLocked(kind, "", data)
	s.mu.Unlock()

	emit(subs, ev)
	return nil
}

// mutate 씬 복사본에 fn 을 적용하고, 직렬화까지 성공했을 때만 반영한다.
func (s *Surface) mutate(kind EventKind, id string, fn func(sc *scene.Scene) error) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	work, err := s.scene.Clone()
	s.mu.RUnlock()
	if err != nil {
		s.fail("Canvas error", "Failed to read the canvas.", err)
		return err
	}

	if err := fn(work); err != nil {
		return err
	}

	data, err := work.Encode()
	if err != nil {
		s.fail("Canvas error", "Failed to save the change.", err)
		return err
	}

	s.mu.Lock()
	s.scene = work
	ev, subs := s.eventLocked(kind, id, data)
	s.mu.Unlock()

	emit(subs, ev)
	return nil
}

func (s *Surface) eventLocked(kind EventKind, id string, data []byte) (ChangeEvent, []func(ChangeEvent)) {
	ev := ChangeEvent{
		Kind:     kind,
		ObjectID: id,
		Tool:     s.tool,
		Brush:    s.brush,
		Snapshot: data,
	}
	if last, ok := s.scene.Last(); ok {
		ev.LastKind = last.Kind()
		if raw, err := json.Marshal(last); err == nil {
			ev.Last = raw
		}
	}

	subs := make([]func(ChangeEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return ev, subs
}

func emit(subs []func(ChangeEvent), ev ChangeEvent) {
	for _, fn := range subs {
		fn(ev)
	}
}

func (s *Surface) fail(title, message string, err error) {
	s.log.Error(strings.ToLower(title), "error", err)
	s.notifier.Notify(notify.Error(title, message))
}
