package scene

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"sync"
)

// Kind 오브젝트 종류 (직렬화 시 type 필드)
type Kind string

const (
	KindPath     Kind = "path"
	KindRect     Kind = "rect"
	KindCircle   Kind = "circle"
	KindTriangle Kind = "triangle"
	KindLine     Kind = "line"
	KindText     Kind = "text"
	KindImage    Kind = "image"
)

// IsShape 도형 도구로 추가 가능한 종류인지
func (k Kind) IsShape() bool {
	switch k {
	case KindRect, KindCircle, KindTriangle, KindLine:
		return true
	}
	return false
}

// Object 씬에 그려지는 오브젝트
type Object interface {
	Kind() Kind
	base() *Base
}

// Point 좌표
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Base 모든 오브젝트 공통 속성
type Base struct {
	Type        Kind    `json:"type"`
	ID          string  `json:"id"`
	Left        float64 `json:"left"`
	Top         float64 `json:"top"`
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Fill        string  `json:"fill,omitempty"`
	Angle       float64 `json:"angle,omitempty"`

	// Extra 구조체에 없는 키 (scaleX, opacity 등). Encode 때 그대로 다시 붙인다.
	Extra map[string]json.RawMessage `json:"-"`
}

func (b *Base) base() *Base { return b }

// Common 공통 속성 조회
func Common(obj Object) *Base {
	return obj.base()
}

// Path 자유곡선 (펜/지우개 한 획)
type Path struct {
	Base
	Points []Point `json:"points"`
	Eraser bool    `json:"eraser,omitempty"`
}

func (*Path) Kind() Kind { return KindPath }

// NewPath 점 목록으로 path 생성. Left/Top은 bounding box 좌상단.
func NewPath(id string, points []Point, color string, width float64) *Path {
	p := &Path{
		Base:   Base{Type: KindPath, ID: id, Stroke: color, StrokeWidth: width},
		Points: points,
	}
	p.Left, p.Top = bounds(points)
	return p
}

type Rect struct {
	Base
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (*Rect) Kind() Kind { return KindRect }

type Circle struct {
	Base
	Radius float64 `json:"radius"`
}

func (*Circle) Kind() Kind { return KindCircle }

type Triangle struct {
	Base
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (*Triangle) Kind() Kind { return KindTriangle }

// Line Left/Top 이 시작점, X2/Y2 가 끝점 (절대 좌표)
type Line struct {
	Base
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (*Line) Kind() Kind { return KindLine }

type Text struct {
	Base
	Text       string  `json:"text"`
	FontSize   float64 `json:"fontSize"`
	FontFamily string  `json:"fontFamily,omitempty"`
}

func (*Text) Kind() Kind { return KindText }

// Image 인라인 이미지 (data URL)
type Image struct {
	Base
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Src    string  `json:"src"`
}

func (*Image) Kind() Kind { return KindImage }

// Unknown 알 수 없는 type 의 오브젝트. 원본 JSON 그대로 보존.
type Unknown struct {
	Base
	Raw json.RawMessage `json:"-"`
}

func (u *Unknown) Kind() Kind { return u.Type }

func (u *Unknown) MarshalJSON() ([]byte, error) {
	return u.Raw, nil
}

func decodeObject(raw json.RawMessage) (Object, error) {
	var head Base
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	var obj Object
	switch head.Type {
	case KindPath:
		obj = &Path{}
	case KindRect:
		obj = &Rect{}
	case KindCircle:
		obj = &Circle{}
	case KindTriangle:
		obj = &Triangle{}
	case KindLine:
		obj = &Line{}
	case KindText:
		obj = &Text{}
	case KindImage:
		obj = &Image{}
	default:
		raw = append(json.RawMessage(nil), raw...)
		return &Unknown{Base: head, Raw: raw}, nil
	}

	if err := json.Unmarshal(raw, obj); err != nil {
		return nil, err
	}
	extra, err := unmodelled(raw, obj)
	if err != nil {
		return nil, err
	}
	obj.base().Extra = extra
	return obj, nil
}

// knownKeys 타입별 json 키 집합 (소문자, encoding/json 처럼 대소문자 무시)
var knownKeys sync.Map

func fieldKeys(t reflect.Type) map[string]struct{} {
	if v, ok := knownKeys.Load(t); ok {
		return v.(map[string]struct{})
	}
	keys := make(map[string]struct{})
	collectKeys(t, keys)
	knownKeys.Store(t, keys)
	return keys
}

func collectKeys(t reflect.Type, keys map[string]struct{}) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if f.Anonymous && tag == "" && f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, keys)
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" || !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys[strings.ToLower(name)] = struct{}{}
	}
}

func unmodelled(raw json.RawMessage, obj Object) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}

	known := fieldKeys(reflect.TypeOf(obj).Elem())
	var extra map[string]json.RawMessage
	for k, v := range all {
		if _, ok := known[strings.ToLower(k)]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra, nil
}

// mergeExtra 직렬화된 오브젝트에 Extra 키를 붙인다. 모델링된 키가 우선.
func mergeExtra(data []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return data, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

// Patch 오브젝트 부분 수정 (nil 필드는 유지)
type Patch struct {
	Left        *float64 `json:"left,omitempty"`
	Top         *float64 `json:"top,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	Radius      *float64 `json:"radius,omitempty"`
	Angle       *float64 `json:"angle,omitempty"`
	Stroke      *string  `json:"stroke,omitempty"`
	StrokeWidth *float64 `json:"strokeWidth,omitempty"`
	Fill        *string  `json:"fill,omitempty"`
	Text        *string  `json:"text,omitempty"`
	FontSize    *float64 `json:"fontSize,omitempty"`
}

// Apply 패치 적용. 위치 이동은 path/line 의 좌표도 같이 옮긴다.
func Apply(obj Object, p Patch) {
	b := obj.base()

	dx, dy := 0.0, 0.0
	if p.Left != nil {
		dx = *p.Left - b.Left
	}
	if p.Top != nil {
		dy = *p.Top - b.Top
	}
	if dx != 0 || dy != 0 {
		Translate(obj, dx, dy)
	}

	if p.Angle != nil {
		b.Angle = math.Mod(*p.Angle, 360)
	}
	if p.Stroke != nil {
		b.Stroke = *p.Stroke
	}
	if p.StrokeWidth != nil && *p.StrokeWidth >= 0 {
		b.StrokeWidth = *p.StrokeWidth
	}
	if p.Fill != nil {
		b.Fill = *p.Fill
	}

	switch o := obj.(type) {
	case *Rect:
		setPositive(&o.Width, p.Width)
		setPositive(&o.Height, p.Height)
	case *Triangle:
		setPositive(&o.Width, p.Width)
		setPositive(&o.Height, p.Height)
	case *Image:
		setPositive(&o.Width, p.Width)
		setPositive(&o.Height, p.Height)
	case *Circle:
		setPositive(&o.Radius, p.Radius)
	case *Text:
		if p.Text != nil {
			o.Text = *p.Text
		}
		setPositive(&o.FontSize, p.FontSize)
	}
}

// Translate 오브젝트를 (dx, dy) 만큼 이동
func Translate(obj Object, dx, dy float64) {
	b := obj.base()
	b.Left += dx
	b.Top += dy

	switch o := obj.(type) {
	case *Path:
		for i := range o.Points {
			o.Points[i].X += dx
			o.Points[i].Y += dy
		}
	case *Line:
		o.X2 += dx
		o.Y2 += dy
	}
}

func setPositive(dst *float64, v *float64) {
	if v != nil && *v > 0 {
		*dst = *v
	}
}

func bounds(points []Point) (minX, minY float64) {
	if len(points) == 0 {
		return 0, 0
	}
	minX, minY = points[0].X, points[0].Y
	for _, pt := range points[1:] {
		minX = math.Min(minX, pt.X)
		minY = math.Min(minY, pt.Y)
	}
	return minX, minY
}
