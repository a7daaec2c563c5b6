package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tutorbox-backend/internal/model"
)

// Identity 로그인한 사용자 정보
type Identity struct {
	UserID      int64      `json:"userId"`
	Email       string     `json:"email"`
	Nickname    string     `json:"nickname"`
	IsPro       bool       `json:"isPro"`
	TrialEndsAt *time.Time `json:"trialEndsAt,omitempty"`
}

// HasProAccess Pro 또는 체험 기간 중인지
func (i Identity) HasProAccess(now time.Time) bool {
	return i.IsPro || (i.TrialEndsAt != nil && now.Before(*i.TrialEndsAt))
}

// FromUser DB 사용자로 Identity 생성
func FromUser(u *model.User) Identity {
	return Identity{
		UserID:      u.ID,
		Email:       u.Email,
		Nickname:    u.Nickname,
		IsPro:       u.IsPro,
		TrialEndsAt: u.TrialEndsAt,
	}
}

// Session 사용자 세션 (Thread-Safe)
//
// 전역 인증 상태 대신 필요한 곳에 참조로 넘긴다. 정보가 바뀌면 구독자에게 알린다.
type Session struct {
	ID          string
	ConnectedAt time.Time

	mu       sync.RWMutex
	identity Identity
	closed   bool

	subs    map[int]func(Identity)
	nextSub int
}

// New 새 세션 생성
func New(identity Identity) *Session {
	return &Session{
		ID:          uuid.New().String(),
		ConnectedAt: time.Now(),
		identity:    identity,
		subs:        make(map[int]func(Identity)),
	}
}

// Identity 현재 사용자 정보
func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.UserID
}

// Subscribe 세션 변경 알림 구독. 반환된 ID 로 Unsubscribe.
func (s *Session) Subscribe(fn func(Identity)) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return id
}

// Unsubscribe 구독 해제
func (s *Session) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// Update 사용자 정보 갱신 후 구독자에게 알림
func (s *Session) Update(fn func(*Identity)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fn(&s.identity)
	next := s.identity
	subs := make([]func(Identity), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(next)
	}
}

// MarkPro Pro 업그레이드 반영
func (s *Session) MarkPro() {
	s.Update(func(i *Identity) { i.IsPro = true })
}

// Duration 세션 유지 시간
func (s *Session) Duration() time.Duration {
	return time.Since(s.ConnectedAt)
}

// Close 세션 정리. 이후 Update 는 무시된다.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.subs = make(map[int]func(Identity))
}

func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Registry 사용자별 세션 보관소. 결제 등으로 사용자 정보가 바뀌면 해당 세션에 전파한다.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Acquire 사용자 세션 조회, 없으면 생성
func (r *Registry) Acquire(identity Identity) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[identity.UserID]; ok && !s.IsClosed() {
		return s
	}
	s := New(identity)
	r.sessions[identity.UserID] = s
	return s
}

// Get 사용자 세션 조회
func (r *Registry) Get(userID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Release 세션 종료 및 제거
func (r *Registry) Release(userID int64) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if ok {
		s.Close()
	}
}
