// Package scene models the whiteboard scene graph: a versioned list of drawable
// objects keyed by shape kind, serialized as the opaque JSON stored in slides.canvas_data.
package scene

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Version 직렬화 포맷 버전
const Version = "1"

// DefaultBackground 배경색 기본값
const DefaultBackground = "#ffffff"

var (
	ErrInvalidScene = errors.New("invalid scene data")
	ErrNotFound     = errors.New("object not found")
)

// Scene 슬라이드 하나의 씬 그래프
type Scene struct {
	Version    string
	Background string
	Objects    []Object
}

type wireScene struct {
	Version    string            `json:"version,omitempty"`
	Background string            `json:"background,omitempty"`
	Objects    []json.RawMessage `json:"objects"`
}

// New 빈 씬 생성
func New() *Scene {
	return &Scene{Version: Version, Background: DefaultBackground}
}

// Decode canvas_data JSON을 씬으로 변환. 빈 값, null, {} 는 빈 씬.
func Decode(data []byte) (*Scene, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return New(), nil
	}

	var wire wireScene
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}

	s := New()
	if wire.Version != "" {
		s.Version = wire.Version
	}
	if wire.Background != "" {
		s.Background = wire.Background
	}

	s.Objects = make([]Object, 0, len(wire.Objects))
	for i, raw := range wire.Objects {
		obj, err := decodeObject(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: object %d: %v", ErrInvalidScene, i, err)
		}
		s.Objects = append(s.Objects, obj)
	}
	return s, nil
}

// Encode 씬을 JSON으로 직렬화
func (s *Scene) Encode() ([]byte, error) {
	wire := wireScene{
		Version:    s.Version,
		Background: s.Background,
		Objects:    make([]json.RawMessage, 0, len(s.Objects)),
	}
	for _, obj := range s.Objects {
		_, unknown := obj.(*Unknown)
		if !unknown {
			obj.base().Type = obj.Kind()
		}
		raw, err := json.Marshal(obj)
		if err == nil && !unknown {
			raw, err = mergeExtra(raw, obj.base().Extra)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s object %q: %w", obj.Kind(), obj.base().ID, err)
		}
		wire.Objects = append(wire.Objects, raw)
	}
	return json.Marshal(wire)
}

// Clone 깊은 복사
func (s *Scene) Clone() (*Scene, error) {
	data, err := s.Encode()
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Append 오브젝트 추가
func (s *Scene) Append(obj Object) {
	s.Objects = append(s.Objects, obj)
}

// Find ID로 오브젝트 조회
func (s *Scene) Find(id string) (Object, bool) {
	for _, obj := range s.Objects {
		if obj.base().ID == id {
			return obj, true
		}
	}
	return nil, false
}

// Remove ID로 오브젝트 삭제
func (s *Scene) Remove(id string) (Object, error) {
	for i, obj := range s.Objects {
		if obj.base().ID == id {
			s.Objects = append(s.Objects[:i], s.Objects[i+1:]...)
			return obj, nil
		}
	}
	return nil, ErrNotFound
}

// Last 마지막(가장 위) 오브젝트
func (s *Scene) Last() (Object, bool) {
	if len(s.Objects) == 0 {
		return nil, false
	}
	return s.Objects[len(s.Objects)-1], true
}

// Len 오브젝트 수
func (s *Scene) Len() int {
	return len(s.Objects)
}
