package editor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tutorbox-backend/internal/cache"
	"tutorbox-backend/internal/canvas"
	"tutorbox-backend/internal/config"
	"tutorbox-backend/internal/history"
	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/notify"
	"tutorbox-backend/internal/session"
	"tutorbox-backend/internal/slides"
	"tutorbox-backend/internal/strokes"
)

const reapInterval = time.Minute

var ErrNotOpen = errors.New("editor is not open")

type key struct {
	userID   int64
	lessonID int64
}

func (k key) String() string {
	return strconv.FormatInt(k.userID, 10) + ":" + strconv.FormatInt(k.lessonID, 10)
}

// Hub (사용자, 레슨) 별 Editor 보관소
type Hub struct {
	cfg         config.EditorConfig
	slideStore  slides.Store
	strokeStore strokes.Store
	drafts      Drafts
	log         *logger.Logger

	opening singleflight.Group

	mu      sync.Mutex
	editors map[key]*Editor
}

// NewHub Hub 생성. drafts 는 nil-safe 한 *cache.RedisClient 여도 된다.
func NewHub(cfg config.EditorConfig, slideStore slides.Store, strokeStore strokes.Store, drafts Drafts, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	if drafts == nil {
		drafts = (*cache.RedisClient)(nil)
	}
	return &Hub{
		cfg:         cfg,
		slideStore:  slideStore,
		strokeStore: strokeStore,
		drafts:      drafts,
		log:         log.With("component", "editor_hub"),
		editors:     make(map[key]*Editor),
	}
}

// Open 에디터를 열거나 이미 열린 것을 반환한다. 첫 슬라이드를 로드하고,
// 자동 저장이 꺼져 있고 드래프트가 남아 있으면 그것을 복원한다.
//
// build 는 DB/Redis 를 거치므로 h.mu 밖에서 하고, 같은 키의 동시 Open 은 하나의 build 를 공유한다.
func (h *Hub) Open(ctx context.Context, sess *session.Session, lessonID int64) (*Editor, error) {
	k := key{userID: sess.UserID(), lessonID: lessonID}

	if e, ok := h.lookup(k); ok {
		return e, nil
	}

	v, err, _ := h.opening.Do(k.String(), func() (any, error) {
		if e, ok := h.lookup(k); ok {
			return e, nil
		}
		e, err := h.build(ctx, sess, lessonID)
		if err != nil {
			return nil, err
		}

		h.mu.Lock()
		h.editors[k] = e
		h.mu.Unlock()

		h.log.Info("editor opened", "user_id", k.userID, "lesson_id", lessonID)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Editor), nil
}

func (h *Hub) lookup(k key) (*Editor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.editors[k]
	if !ok || e.isClosed() {
		return nil, false
	}
	e.touch()
	return e, true
}

func (h *Hub) build(ctx context.Context, sess *session.Session, lessonID int64) (*Editor, error) {
	userID := sess.UserID()
	log := h.log.With("user_id", userID, "lesson_id", lessonID)

	e := &Editor{
		lessonID:   lessonID,
		session:    sess,
		history:    history.New(h.cfg.HistoryCapacity),
		drafts:     h.drafts,
		log:        log,
		flags:      Flags{AutoSave: h.cfg.AutoSave},
		lastActive: time.Now(),
		subs:       make(map[int]func(Message)),
	}

	policy := strokes.DropOnFailure
	if h.cfg.RequeueFailedStrokes {
		policy = strokes.RequeueOnFailure
	}
	e.batcher = strokes.New(h.strokeStore, userID,
		strokes.WithDelay(h.cfg.StrokeDebounce),
		strokes.WithFailurePolicy(policy),
		strokes.WithNotifier(e),
		strokes.WithLogger(log),
	)
	e.surface = canvas.New(
		canvas.WithHistory(e.history),
		canvas.WithNotifier(e),
		canvas.WithLogger(log),
		canvas.WithMaxUploadBytes(h.cfg.MaxUploadBytes),
	)
	e.slides = slides.New(lessonID, h.slideStore, e.surface, e.batcher,
		slides.WithNotifier(e),
		slides.WithLogger(log),
	)

	e.unsubSurface = e.surface.Subscribe(e.handleChange)
	e.sessionSub = sess.Subscribe(func(id session.Identity) {
		e.broadcast(Message{Type: MessageSession, Identity: &id})
	})

	if err := e.slides.Load(ctx); err != nil {
		e.unsubSurface()
		sess.Unsubscribe(e.sessionSub)
		return nil, fmt.Errorf("load slides: %w", err)
	}

	if !e.flags.AutoSave && e.restoreDraft(ctx) {
		e.Notify(notify.Info("Draft restored", "Unsaved changes from your last session were restored."))
	}
	return e, nil
}

// Get 열린 에디터 조회
func (h *Hub) Get(userID, lessonID int64) (*Editor, error) {
	e, ok := h.lookup(key{userID: userID, lessonID: lessonID})
	if !ok {
		return nil, ErrNotOpen
	}
	return e, nil
}

// Close 에디터 닫기 (대기 중인 획 저장)
func (h *Hub) Close(ctx context.Context, userID, lessonID int64) error {
	k := key{userID: userID, lessonID: lessonID}

	h.mu.Lock()
	e, ok := h.editors[k]
	delete(h.editors, k)
	h.mu.Unlock()

	if !ok {
		return ErrNotOpen
	}
	h.log.Info("editor closed", "user_id", userID, "lesson_id", lessonID)
	return e.Close(ctx)
}

// CloseAll 종료 시 모든 에디터 닫기
func (h *Hub) CloseAll(ctx context.Context) {
	h.mu.Lock()
	editors := h.editors
	h.editors = make(map[key]*Editor)
	h.mu.Unlock()

	for k, e := range editors {
		if err := e.Close(ctx); err != nil {
			h.log.Warn("editor close failed", "user_id", k.userID, "lesson_id", k.lessonID, "error", err)
		}
	}
}

// Len 열린 에디터 수
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.editors)
}

// Run IdleTimeout 동안 사용되지 않은 에디터를 주기적으로 닫는다. ctx 가 끝나면 반환.
func (h *Hub) Run(ctx context.Context) {
	if h.cfg.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.reap(ctx, now)
		}
	}
}

func (h *Hub) reap(ctx context.Context, now time.Time) {
	h.mu.Lock()
	var idle []*Editor
	for k, e := range h.editors {
		if now.Sub(e.idleSince()) >= h.cfg.IdleTimeout {
			idle = append(idle, e)
			delete(h.editors, k)
		}
	}
	h.mu.Unlock()

	for _, e := range idle {
		h.log.Info("closing idle editor", "user_id", e.UserID(), "lesson_id", e.lessonID)
		if err := e.Close(ctx); err != nil {
			h.log.Warn("idle editor close failed", "error", err)
		}
	}
}
