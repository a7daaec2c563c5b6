// Package editor composes the canvas surface, history, stroke batcher and slide
// collection into one editing session per user and lesson.
package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tutorbox-backend/internal/cache"
	"tutorbox-backend/internal/canvas"
	"tutorbox-backend/internal/history"
	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/model"
	"tutorbox-backend/internal/notify"
	"tutorbox-backend/internal/scene"
	"tutorbox-backend/internal/session"
	"tutorbox-backend/internal/slides"
	"tutorbox-backend/internal/strokes"
)

const (
	saveTimeout = 5 * time.Second
	// freeWatermark Pro 가 아닌 사용자의 내보내기 워터마크
	freeWatermark = "Made with TutorBox"
)

var ErrClosed = errors.New("editor is closed")

// Drafts 자동 저장이 꺼져 있을 때 스냅샷 보관소
type Drafts interface {
	SaveDraft(ctx context.Context, d cache.Draft) error
	LoadDraft(ctx context.Context, userID, slideID int64) (*cache.Draft, error)
	DeleteDraft(ctx context.Context, userID, slideID int64) error
}

// Flags 화면 상태 플래그. Collaborative 는 저장만 하고 동기화에는 쓰지 않는다.
type Flags struct {
	AutoSave      bool `json:"autoSave"`
	CameraVisible bool `json:"cameraVisible"`
	Recording     bool `json:"recording"`
	Collaborative bool `json:"collaborative"`
}

// FlagsPatch nil 필드는 유지
type FlagsPatch struct {
	CameraVisible *bool `json:"cameraVisible"`
	Recording     *bool `json:"recording"`
	Collaborative *bool `json:"collaborative"`
}

// MessageType WebSocket 으로 내보내는 메시지 종류
type MessageType string

const (
	MessageChange  MessageType = "change"
	MessageToast   MessageType = "toast"
	MessageSession MessageType = "session"
)

// Message 에디터 구독자에게 전달되는 메시지
type Message struct {
	Type     MessageType         `json:"type"`
	Change   *canvas.ChangeEvent `json:"change,omitempty"`
	Toast    *notify.Toast       `json:"toast,omitempty"`
	Identity *session.Identity   `json:"identity,omitempty"`
}

// State 에디터 상태 스냅샷 (GET /editor)
type State struct {
	LessonID       int64           `json:"lessonId"`
	Slides         []model.Slide   `json:"slides"`
	CurrentIndex   int             `json:"currentIndex"`
	Tool           canvas.Tool     `json:"tool"`
	Brush          canvas.Brush    `json:"brush"`
	Viewport       canvas.Viewport `json:"viewport"`
	Flags          Flags           `json:"flags"`
	CanUndo        bool            `json:"canUndo"`
	CanRedo        bool            `json:"canRedo"`
	PendingStrokes int             `json:"pendingStrokes"`
	Scene          json.RawMessage `json:"scene"`
}

// Editor 사용자 한 명이 레슨 하나를 편집하는 세션
//
// 캔버스 변경마다 (a) load/restore 가 아니면 히스토리에 쌓고 (b) 펜으로 그린 path 면
// 획 배처에 넣고 (c) 자동 저장이 켜져 있으면 현재 슬라이드 canvas_data 를 덮어쓴다.
// 꺼져 있으면 Save 전까지 Redis 드래프트로 보관한다.
type Editor struct {
	lessonID int64
	session  *session.Session
	surface  *canvas.Surface
	history  *history.Stack
	batcher  *strokes.Batcher
	slides   *slides.Collection
	drafts   Drafts
	log      *logger.Logger

	unsubSurface func()
	sessionSub   int

	mu         sync.RWMutex
	flags      Flags
	closed     bool
	lastActive time.Time
	subs       map[int]func(Message)
	nextSub    int
}

// UserID 편집 중인 사용자
func (e *Editor) UserID() int64 { return e.session.UserID() }

func (e *Editor) LessonID() int64 { return e.lessonID }

// Canvas 캔버스 (도구/도형/업로드/뷰포트)
func (e *Editor) Canvas() *canvas.Surface { return e.surface }

// Slides 슬라이드 목록
func (e *Editor) Slides() *slides.Collection { return e.slides }

// Strokes 획 배처
func (e *Editor) Strokes() *strokes.Batcher { return e.batcher }

func (e *Editor) Flags() Flags {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.flags
}

// Subscribe 변경/토스트 메시지 구독. 반환된 함수로 해제.
func (e *Editor) Subscribe(fn func(Message)) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Notify notify.Notifier 구현. 토스트를 구독자에게 전달한다.
func (e *Editor) Notify(t notify.Toast) {
	e.broadcast(Message{Type: MessageToast, Toast: &t})
}

func (e *Editor) broadcast(msg Message) {
	e.mu.RLock()
	subs := make([]func(Message), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.RUnlock()

	for _, fn := range subs {
		fn(msg)
	}
}

func (e *Editor) touch() {
	e.mu.Lock()
	e.lastActive = time.Now()
	e.mu.Unlock()
}

func (e *Editor) idleSince() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastActive
}

func (e *Editor) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// handleChange 캔버스 변경 이벤트 처리
func (e *Editor) handleChange(ev canvas.ChangeEvent) {
	switch ev.Kind {
	case canvas.EventLoaded:
		e.history.Reset(ev.Snapshot)
	case canvas.EventRestored:
	default:
		e.history.Push(ev.Snapshot)
	}

	if ev.Kind == canvas.EventAdded && ev.Tool == canvas.ToolPen && ev.LastKind == scene.KindPath {
		e.batcher.Queue(ev.Last, string(canvas.ToolPen), ev.Brush.Color, ev.Brush.Size)
	}

	if ev.Kind != canvas.EventLoaded {
		e.persist(ev.Snapshot)
	}

	e.broadcast(Message{Type: MessageChange, Change: &ev})
}

func (e *Editor) persist(snapshot []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if e.Flags().AutoSave {
		if err := e.slides.SaveCurrent(ctx, snapshot); err != nil {
			e.log.Error("auto-save failed", "error", err)
			e.Notify(notify.Error("Auto-save failed", "Your changes are still on the board. Try saving again."))
		}
		return
	}

	cur, ok := e.slides.Current()
	if !ok {
		return
	}
	draft := cache.Draft{UserID: e.UserID(), LessonID: e.lessonID, SlideID: cur.ID, Snapshot: snapshot}
	if err := e.drafts.SaveDraft(ctx, draft); err != nil {
		e.log.Warn("draft save failed", "slide_id", cur.ID, "error", err)
	}
}

// Save 현재 슬라이드를 즉시 저장하고 드래프트를 지운다.
func (e *Editor) Save(ctx context.Context) error {
	if e.isClosed() {
		return ErrClosed
	}
	e.touch()

	snapshot, err := e.surface.Snapshot()
	if err != nil {
		e.Notify(notify.Error("Save failed", "Could not read the board."))
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := e.slides.SaveCurrent(ctx, snapshot); err != nil {
		e.Notify(notify.Error("Save failed", "Could not save the slide."))
		return err
	}
	if cur, ok := e.slides.Current(); ok {
		if err := e.drafts.DeleteDraft(ctx, e.UserID(), cur.ID); err != nil {
			e.log.Warn("draft delete failed", "slide_id", cur.ID, "error", err)
		}
	}
	e.Notify(notify.Success("Saved", "Slide saved."))
	return nil
}

// Flush 대기 중인 획 즉시 저장 (forceSave)
func (e *Editor) Flush(ctx context.Context) error {
	e.touch()
	return e.batcher.Flush(ctx)
}

// SetAutoSave 자동 저장 토글. 켜는 순간 현재 슬라이드를 한 번 저장한다.
func (e *Editor) SetAutoSave(ctx context.Context, on bool) error {
	e.mu.Lock()
	was := e.flags.AutoSave
	e.flags.AutoSave = on
	e.mu.Unlock()

	if on && !was {
		return e.Save(ctx)
	}
	return nil
}

// SetFlags 화면 플래그 변경
func (e *Editor) SetFlags(p FlagsPatch) Flags {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.CameraVisible != nil {
		e.flags.CameraVisible = *p.CameraVisible
	}
	if p.Recording != nil {
		e.flags.Recording = *p.Recording
	}
	if p.Collaborative != nil {
		e.flags.Collaborative = *p.Collaborative
	}
	return e.flags
}

// SelectSlide 슬라이드 전환 (획 flush 후 로드). 자동 저장이 꺼져 있으면 그 슬라이드의 드래프트를 올린다.
func (e *Editor) SelectSlide(ctx context.Context, index int) error {
	e.touch()
	if err := e.slides.Select(ctx, index); err != nil {
		return err
	}
	if !e.Flags().AutoSave {
		e.restoreDraft(ctx)
	}
	return nil
}

// DeleteSlide 슬라이드 삭제. 현재 슬라이드가 바뀌면 새 슬라이드의 드래프트를 올린다.
func (e *Editor) DeleteSlide(ctx context.Context, slideID int64) error {
	e.touch()
	before, _ := e.slides.Current()
	if err := e.slides.Delete(ctx, slideID); err != nil {
		return err
	}
	if err := e.drafts.DeleteDraft(ctx, e.UserID(), slideID); err != nil {
		e.log.Warn("draft delete failed", "slide_id", slideID, "error", err)
	}

	after, ok := e.slides.Current()
	if ok && after.ID != before.ID && !e.Flags().AutoSave {
		e.restoreDraft(ctx)
	}
	return nil
}

// restoreDraft 현재 슬라이드의 드래프트가 있으면 캔버스에 올린다.
func (e *Editor) restoreDraft(ctx context.Context) bool {
	cur, ok := e.slides.Current()
	if !ok {
		return false
	}
	d, err := e.drafts.LoadDraft(ctx, e.UserID(), cur.ID)
	if err != nil {
		if !errors.Is(err, cache.ErrDraftNotFound) {
			e.log.Warn("draft load failed", "slide_id", cur.ID, "error", err)
		}
		return false
	}
	if err := e.surface.Load(d.Snapshot); err != nil {
		e.log.Warn("draft is not a valid scene", "slide_id", cur.ID, "error", err)
		return false
	}
	return true
}

// ExportOptions 사용자 등급에 맞는 내보내기 옵션. Pro 는 브랜딩 워터마크(없으면 없음).
func (e *Editor) ExportOptions(brandWatermark string) scene.ExportOptions {
	opts := scene.DefaultExportOptions()
	if e.session.Identity().HasProAccess(time.Now()) {
		opts.Watermark = brandWatermark
	} else {
		opts.Watermark = freeWatermark
	}
	return opts
}

// State 현재 상태
func (e *Editor) State() (State, error) {
	snapshot, err := e.surface.Snapshot()
	if err != nil {
		return State{}, err
	}
	return State{
		LessonID:       e.lessonID,
		Slides:         e.slides.Slides(),
		CurrentIndex:   e.slides.CurrentIndex(),
		Tool:           e.surface.Tool(),
		Brush:          e.surface.Brush(),
		Viewport:       e.surface.Viewport(),
		Flags:          e.Flags(),
		CanUndo:        e.history.CanUndo(),
		CanRedo:        e.history.CanRedo(),
		PendingStrokes: e.batcher.Pending(),
		Scene:          snapshot,
	}, nil
}

// Close 언마운트. 대기 중인 획을 저장하고 구독을 정리한다.
func (e *Editor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	err := e.batcher.Flush(ctx)
	e.unsubSurface()
	e.session.Unsubscribe(e.sessionSub)
	e.slides.Wait()

	e.mu.Lock()
	e.subs = make(map[int]func(Message))
	e.mu.Unlock()
	return err
}
