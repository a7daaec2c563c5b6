package scene

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_EmptyInputs(t *testing.T) {
	for _, in := range []string{"", "  ", "null", "{}"} {
		s, err := Decode([]byte(in))
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, 0, s.Len())
		assert.Equal(t, DefaultBackground, s.Background)
	}
}

func TestDecode_RejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"objects": [`))
	assert.ErrorIs(t, err, ErrInvalidScene)

	_, err = Decode([]byte(`{"objects": [{"type": "rect", "width": "wide"}]}`))
	assert.ErrorIs(t, err, ErrInvalidScene)
}

func TestEncodeDecode_TaggedUnion(t *testing.T) {
	s := New()
	s.Append(NewPath("p1", []Point{{X: 10, Y: 20}, {X: 30, Y: 5}}, "#000000", 3))
	s.Append(&Rect{Base: Base{ID: "r1", Left: 1, Top: 2, Stroke: "#ff0000"}, Width: 40, Height: 50})
	s.Append(&Text{Base: Base{ID: "t1", Fill: "#333"}, Text: "hello", FontSize: 20})

	data, err := s.Encode()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	objects := raw["objects"].([]any)
	require.Len(t, objects, 3)
	assert.Equal(t, "path", objects[0].(map[string]any)["type"])
	assert.Equal(t, "rect", objects[1].(map[string]any)["type"])

	back, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, 3, back.Len())

	p, ok := back.Objects[0].(*Path)
	require.True(t, ok)
	assert.Equal(t, 10.0, p.Left)
	assert.Equal(t, 5.0, p.Top)
	assert.Len(t, p.Points, 2)

	r, ok := back.Objects[1].(*Rect)
	require.True(t, ok)
	assert.Equal(t, 40.0, r.Width)
	assert.Nil(t, r.Extra)
}

func TestDecode_PreservesUnknownObjects(t *testing.T) {
	in := `{"version":"1","background":"#ffffff","objects":[{"type":"sticky-note","id":"n1","color":"yellow"}]}`

	s, err := Decode([]byte(in))
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, Kind("sticky-note"), s.Objects[0].Kind())

	out, err := s.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestEncodeDecode_KeepsUnmodelledKeysOnKnownTypes(t *testing.T) {
	in := `{"objects":[` +
		`{"type":"rect","id":"r1","left":1,"top":2,"width":40,"height":50,"scaleX":1.5,"opacity":0.4},` +
		`{"type":"path","id":"p1","left":0,"top":0,"points":[{"x":0,"y":0}],"path":[["M",0,0],["L",5,5]]}]}`

	s, err := Decode([]byte(in))
	require.NoError(t, err)
	r := s.Objects[0].(*Rect)
	assert.JSONEq(t, `1.5`, string(r.Extra["scaleX"]))
	assert.NotContains(t, r.Extra, "width")

	// 모델링된 키는 수정값이 그대로 나간다
	left := 30.0
	Apply(r, Patch{Left: &left})

	out, err := s.Encode()
	require.NoError(t, err)

	var wire struct {
		Objects []map[string]any `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(out, &wire))
	require.Len(t, wire.Objects, 2)
	assert.Equal(t, 1.5, wire.Objects[0]["scaleX"])
	assert.Equal(t, 0.4, wire.Objects[0]["opacity"])
	assert.Equal(t, 30.0, wire.Objects[0]["left"])
	assert.Equal(t, "rect", wire.Objects[0]["type"])
	assert.Len(t, wire.Objects[1]["path"], 2)

	clone, err := s.Clone()
	require.NoError(t, err)
	assert.JSONEq(t, `0.4`, string(clone.Objects[0].(*Rect).Extra["opacity"]))
}

func TestRemoveAndFind(t *testing.T) {
	s := New()
	s.Append(&Circle{Base: Base{ID: "a"}})
	s.Append(&Circle{Base: Base{ID: "b"}})

	_, ok := s.Find("b")
	assert.True(t, ok)

	_, err := s.Remove("a")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	_, err = s.Remove("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApply_MovesPathPoints(t *testing.T) {
	p := NewPath("p", []Point{{X: 10, Y: 10}, {X: 20, Y: 30}}, "#000", 2)
	left, top := 15.0, 0.0

	Apply(p, Patch{Left: &left, Top: &top})

	assert.Equal(t, 15.0, p.Left)
	assert.Equal(t, 0.0, p.Top)
	assert.Equal(t, Point{X: 15, Y: 0}, p.Points[0])
	assert.Equal(t, Point{X: 25, Y: 20}, p.Points[1])
}

func TestApply_IgnoresNonPositiveSizes(t *testing.T) {
	r := &Rect{Width: 10, Height: 10}
	zero, twenty := 0.0, 20.0

	Apply(r, Patch{Width: &zero, Height: &twenty})

	assert.Equal(t, 10.0, r.Width)
	assert.Equal(t, 20.0, r.Height)
}

func TestParseHexColor(t *testing.T) {
	c, ok := ParseHexColor("#f00")
	assert.True(t, ok)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, c)

	c, ok = ParseHexColor("#00FF7f")
	assert.True(t, ok)
	assert.Equal(t, color.NRGBA{G: 255, B: 127, A: 255}, c)

	for _, bad := range []string{"", "transparent", "#12", "#zzzzzz", "red"} {
		_, ok := ParseHexColor(bad)
		assert.False(t, ok, bad)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	src := EncodeDataURL("image/png", []byte{1, 2, 3})

	mimeType, data, err := DecodeDataURL(src)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, _, err = DecodeDataURL("https://example.com/a.png")
	assert.ErrorIs(t, err, ErrInvalidDataURL)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JPG")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, f)
	assert.Equal(t, ".jpg", f.Extension())

	_, err = ParseFormat("gif")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func sampleScene(t *testing.T) *Scene {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	s := New()
	s.Append(NewPath("p", []Point{{X: 10, Y: 10}, {X: 100, Y: 100}}, "#000000", 3))
	s.Append(&Rect{Base: Base{ID: "r", Left: 5, Top: 5, Stroke: "#ff0000", Fill: "#00ff00", Angle: 15}, Width: 50, Height: 20})
	s.Append(&Circle{Base: Base{ID: "c", Left: 200, Top: 200, Stroke: "#0000ff"}, Radius: 30})
	s.Append(&Triangle{Base: Base{ID: "tr", Left: 300, Top: 50, Fill: "#123456"}, Width: 40, Height: 40})
	s.Append(&Line{Base: Base{ID: "l", Left: 0, Top: 0, Stroke: "#000"}, X2: 50, Y2: 50})
	s.Append(&Text{Base: Base{ID: "t", Left: 20, Top: 300, Fill: "#000000"}, Text: "a < b\nline two", FontSize: 18})
	s.Append(&Image{Base: Base{ID: "i", Left: 400, Top: 400}, Width: 16, Height: 16, Src: EncodeDataURL("image/png", buf.Bytes())})
	return s
}

func TestExport_PNG(t *testing.T) {
	var buf bytes.Buffer
	err := Export(&buf, sampleScene(t), FormatPNG, ExportOptions{Width: 640, Height: 480, Watermark: "TutorBox"})
	require.NoError(t, err)

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 480, img.Bounds().Dy())
}

func TestExport_JPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sampleScene(t), FormatJPEG, DefaultExportOptions()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte{0xff, 0xd8}))
}

func TestExport_SVG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sampleScene(t), FormatSVG, DefaultExportOptions()))

	out := buf.String()
	assert.Contains(t, out, "<svg")
	assert.Contains(t, out, "<polyline")
	assert.Contains(t, out, `rotate(15`)
	assert.Contains(t, out, "a &lt; b")
}

func TestExport_PDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sampleScene(t), FormatPDF, DefaultExportOptions()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}
