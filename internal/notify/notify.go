// Package notify carries user-visible toasts from editor components to whoever
// is listening (the editor WebSocket, or a recorder in tests).
package notify

import (
	"sync"
	"time"
)

// Level 토스트 심각도
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Toast 사용자에게 보여줄 알림
type Toast struct {
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier 토스트 수신자
type Notifier interface {
	Notify(t Toast)
}

// Func 함수를 Notifier 로 사용
type Func func(t Toast)

func (f Func) Notify(t Toast) { f(t) }

// Nop 토스트 무시
type Nop struct{}

func (Nop) Notify(Toast) {}

func newToast(level Level, title, message string) Toast {
	return Toast{Level: level, Title: title, Message: message, At: time.Now()}
}

func Info(title, message string) Toast    { return newToast(LevelInfo, title, message) }
func Success(title, message string) Toast { return newToast(LevelSuccess, title, message) }
func Warning(title, message string) Toast { return newToast(LevelWarning, title, message) }
func Error(title, message string) Toast   { return newToast(LevelError, title, message) }

// Recorder 받은 토스트를 순서대로 보관
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *Recorder) Notify(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

// Toasts 지금까지 받은 토스트 복사본
func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

// Count 특정 레벨 토스트 개수
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.toasts {
		if t.Level == level {
			n++
		}
	}
	return n
}
