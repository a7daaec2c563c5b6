// Package strokes buffers freehand pen strokes in memory and writes them to
// drawing_strokes in batches, after a quiet period or when forced.
package strokes

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"

	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/model"
	"tutorbox-backend/internal/notify"
)

const (
	// DefaultDelay 마지막 획 이후 저장까지 대기 시간
	DefaultDelay = time.Second
	// timerFlushTimeout 타이머로 시작된 저장의 DB 타임아웃
	timerFlushTimeout = 10 * time.Second
)

// FailurePolicy 배치 저장 실패 시 처리 방식
type FailurePolicy int

const (
	// DropOnFailure 경고 토스트 후 배치를 버린다 (재시도 없음)
	DropOnFailure FailurePolicy = iota
	// RequeueOnFailure 배치를 대기열 앞에 되돌리고 디바운스를 다시 건다
	RequeueOnFailure
)

// Store 획 배치 저장소
type Store interface {
	InsertStrokes(ctx context.Context, strokes []model.DrawingStroke) error
}

// PendingStroke 저장 대기 중인 획 (메모리 전용)
type PendingStroke struct {
	SlideID    int64
	StrokeData json.RawMessage
	ToolType   string
	Color      string
	Size       float64
	Timestamp  time.Time
}

// Option Batcher 설정
type Option func(*Batcher)

func WithDelay(d time.Duration) Option {
	return func(b *Batcher) {
		if d > 0 {
			b.delay = d
		}
	}
}

func WithFailurePolicy(p FailurePolicy) Option {
	return func(b *Batcher) { b.policy = p }
}

func WithNotifier(n notify.Notifier) Option {
	return func(b *Batcher) {
		if n != nil {
			b.notifier = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(b *Batcher) {
		if l != nil {
			b.log = l
		}
	}
}

// Batcher 펜 획 배치 저장 서비스
//
// Queue 할 때마다 디바운스 타이머가 다시 시작되고, 조용한 시간이 delay 만큼 지나면
// 대기 중인 획 전체를 한 번의 insert 로 저장한다. Flush 는 즉시 저장하고 걸려 있던
// 타이머 콜백을 빈 함수로 바꿔 해제한다. 타이머 무장/해제는 mu 안에서만 한다.
type Batcher struct {
	store    Store
	userID   int64
	delay    time.Duration
	policy   FailurePolicy
	notifier notify.Notifier
	log      *logger.Logger

	debounced func(func())

	// flushMu 동시에 하나의 배치만 저장되도록 보장
	flushMu sync.Mutex

	mu      sync.Mutex
	slideID int64
	pending []PendingStroke
}

// New Batcher 생성
func New(store Store, userID int64, opts ...Option) *Batcher {
	b := &Batcher{
		store:    store,
		userID:   userID,
		delay:    DefaultDelay,
		policy:   DropOnFailure,
		notifier: notify.Nop{},
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.debounced = debounce.New(b.delay)
	b.log = b.log.With("component", "strokes", "user_id", userID)
	return b
}

// Bind 이후 Queue 되는 획이 속할 슬라이드 지정
func (b *Batcher) Bind(slideID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slideID = slideID
}

// Queue 획 하나를 대기열에 넣고 디바운스 타이머 재시작
func (b *Batcher) Queue(strokeData []byte, toolType, color string, size float64) {
	b.mu.Lock()
	if b.slideID == 0 {
		b.mu.Unlock()
		b.log.Warn("stroke queued without a bound slide, dropping")
		return
	}
	b.pending = append(b.pending, PendingStroke{
		SlideID:    b.slideID,
		StrokeData: append(json.RawMessage(nil), strokeData...),
		ToolType:   toolType,
		Color:      color,
		Size:       size,
		Timestamp:  time.Now(),
	})
	b.debounced(b.flushOnTimer)
	b.mu.Unlock()
}

func (b *Batcher) flushOnTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), timerFlushTimeout)
	defer cancel()
	_ = b.Flush(ctx)
}

// Flush 대기 중인 획을 즉시 저장 (forceSave). 비어있으면 아무것도 하지 않는다.
func (b *Batcher) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	if len(batch) > 0 {
		b.debounced(func() {})
	}
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	rows := make([]model.DrawingStroke, len(batch))
	for i, p := range batch {
		rows[i] = model.DrawingStroke{
			SlideID:    p.SlideID,
			UserID:     b.userID,
			StrokeData: string(p.StrokeData),
			ToolType:   p.ToolType,
			Color:      p.Color,
			Size:       p.Size,
			CreatedAt:  p.Timestamp,
		}
	}

	if err := b.store.InsertStrokes(ctx, rows); err != nil {
		b.log.Warn("stroke batch insert failed", "count", len(rows), "error", err, "requeue", b.policy == RequeueOnFailure)
		b.notifier.Notify(notify.Warning("Sync warning", "Failed to save strokes. Your local work is preserved."))

		if b.policy == RequeueOnFailure {
			b.mu.Lock()
			b.pending = append(batch, b.pending...)
			b.debounced(b.flushOnTimer)
			b.mu.Unlock()
		}
		return fmt.Errorf("insert %d strokes: %w", len(rows), err)
	}

	b.log.Debug("stroke batch saved", "count", len(rows))
	return nil
}

// Pending 대기 중인 획 수
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
