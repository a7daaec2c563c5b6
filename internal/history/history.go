// Package history keeps a bounded, linear undo/redo list of full scene snapshots.
package history

import (
	"encoding/json"
	"sync"
)

// DefaultCapacity 되돌릴 수 있는 변경 최대 개수
const DefaultCapacity = 50

// Stack 스냅샷 기반 선형 히스토리 (Thread-Safe)
//
// index 는 현재 화면에 반영된 스냅샷 위치. 끝이 아닌 곳에서 Push 하면
// index 이후 항목은 버려진다. base 를 포함해 capacity+1 개까지 보관하고
// 넘으면 가장 오래된 항목이 빠진다. 그래서 capacity 번의 변경은 모두 되돌릴 수 있다.
type Stack struct {
	mu       sync.Mutex
	entries  []json.RawMessage
	index    int
	capacity int
}

// New Stack 생성 (capacity <= 0 이면 기본값)
func New(capacity int) *Stack {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stack{index: -1, capacity: capacity}
}

// Push 새 스냅샷 추가
func (s *Stack) Push(snapshot []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries[:s.index+1], clone(snapshot))
	if over := len(s.entries) - (s.capacity + 1); over > 0 {
		s.entries = append([]json.RawMessage(nil), s.entries[over:]...)
	}
	s.index = len(s.entries) - 1
}

// Reset 히스토리를 비우고 base 스냅샷 하나로 시작 (슬라이드 로드 시)
func (s *Stack) Reset(base []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = []json.RawMessage{clone(base)}
	s.index = 0
}

// Undo 한 단계 뒤로. 더 갈 곳이 없으면 ok=false.
func (s *Stack) Undo() (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index <= 0 {
		return nil, false
	}
	s.index--
	return clone(s.entries[s.index]), true
}

// Redo 한 단계 앞으로. 끝이면 ok=false.
func (s *Stack) Redo() (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.entries)-1 {
		return nil, false
	}
	s.index++
	return clone(s.entries[s.index]), true
}

// Current 현재 위치의 스냅샷
func (s *Stack) Current() (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index < 0 {
		return nil, false
	}
	return clone(s.entries[s.index]), true
}

// CanUndo 되돌리기 가능 여부
func (s *Stack) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index > 0
}

// CanRedo 다시하기 가능 여부
func (s *Stack) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index < len(s.entries)-1
}

// Len 보관 중인 스냅샷 수 (base 포함)
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Index 현재 위치 (비어있으면 -1)
func (s *Stack) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func clone(b []byte) json.RawMessage {
	return append(json.RawMessage(nil), b...)
}
