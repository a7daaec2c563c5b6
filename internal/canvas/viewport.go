package canvas

import "math"

const (
	MinZoom = 0.01
	MaxZoom = 20
	// wheelBase 휠 한 단위당 배율 (zoom *= 0.999^deltaY)
	wheelBase = 0.999
)

// Viewport 화면 변환 (screen = world*Zoom + Pan)
type Viewport struct {
	Zoom float64 `json:"zoom"`
	PanX float64 `json:"panX"`
	PanY float64 `json:"panY"`
}

func defaultViewport() Viewport {
	return Viewport{Zoom: 1}
}

// Viewport 현재 뷰포트
func (s *Surface) Viewport() Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// ResetZoom 배율 1, 이동 0 으로 초기화
func (s *Surface) ResetZoom() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = defaultViewport()
	return s.view
}

// Wheel 화면 좌표 (x, y) 를 고정점으로 확대/축소
func (s *Surface) Wheel(deltaY, x, y float64) Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.view.Zoom
	next := clamp(old*math.Pow(wheelBase, deltaY), MinZoom, MaxZoom)
	ratio := next / old

	s.view.PanX = x - (x-s.view.PanX)*ratio
	s.view.PanY = y - (y-s.view.PanY)*ratio
	s.view.Zoom = next
	return s.view
}

// Drag pan 도구이거나 Alt 를 누른 상태면 화면 이동. 이동했으면 true.
func (s *Surface) Drag(dx, dy float64, alt bool) (Viewport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tool != ToolPan && !alt {
		return s.view, false
	}
	s.view.PanX += dx
	s.view.PanY += dy
	return s.view, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
