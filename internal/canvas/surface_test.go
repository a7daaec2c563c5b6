package canvas

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorbox-backend/internal/history"
	"tutorbox-backend/internal/notify"
	"tutorbox-backend/internal/scene"
)

func newSurface(t *testing.T) (*Surface, *notify.Recorder, *[]ChangeEvent) {
	t.Helper()
	rec := &notify.Recorder{}
	s := New(WithHistory(history.New(history.DefaultCapacity)), WithNotifier(rec))
	var events []ChangeEvent
	s.Subscribe(func(ev ChangeEvent) { events = append(events, ev) })
	return s, rec, &events
}

func objectCount(t *testing.T, snapshot []byte) int {
	t.Helper()
	sc, err := scene.Decode(snapshot)
	require.NoError(t, err)
	return sc.Len()
}

func TestSetBrush_Validation(t *testing.T) {
	s := New()

	require.NoError(t, s.SetBrushColor("#FF0000"))
	assert.Equal(t, "#ff0000", s.Brush().Color)
	assert.ErrorIs(t, s.SetBrushColor("red"), ErrInvalidColor)

	require.NoError(t, s.SetBrushSize(100))
	assert.ErrorIs(t, s.SetBrushSize(0), ErrInvalidBrushSize)
	assert.ErrorIs(t, s.SetBrushSize(101), ErrInvalidBrushSize)
	assert.Equal(t, 100.0, s.Brush().Size)

	assert.ErrorIs(t, s.SetTool("laser"), ErrInvalidTool)
	require.NoError(t, s.SetTool(ToolText))
	assert.Equal(t, ToolText, s.Tool())
}

func TestAdd_EmitsFullSnapshot(t *testing.T) {
	s, _, events := newSurface(t)

	_, err := s.AddShape(scene.KindRect)
	require.NoError(t, err)
	id, err := s.AddText("hello")
	require.NoError(t, err)

	require.Len(t, *events, 2)
	last := (*events)[1]
	assert.Equal(t, EventAdded, last.Kind)
	assert.Equal(t, id, last.ObjectID)
	assert.Equal(t, 2, objectCount(t, last.Snapshot))
	assert.Equal(t, scene.KindText, last.LastKind)

	_, err = s.AddShape(scene.KindPath)
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = s.AddText("   ")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Len(t, *events, 2)
}

func TestAddPath_PenAndEraser(t *testing.T) {
	s, _, events := newSurface(t)
	pts := []scene.Point{{X: 1, Y: 1}, {X: 5, Y: 9}}

	_, err := s.AddPath(pts)
	require.NoError(t, err)
	ev := (*events)[0]
	assert.Equal(t, ToolPen, ev.Tool)
	assert.Equal(t, scene.KindPath, ev.LastKind)

	require.NoError(t, s.SetTool(ToolEraser))
	_, err = s.AddPath(pts)
	require.NoError(t, err)

	sc, err := s.Scene()
	require.NoError(t, err)
	eraser := sc.Objects[1].(*scene.Path)
	assert.True(t, eraser.Eraser)
	assert.Equal(t, scene.DefaultBackground, eraser.Stroke)

	require.NoError(t, s.SetTool(ToolSelect))
	_, err = s.AddPath(pts)
	assert.ErrorIs(t, err, ErrNotDrawing)

	_, err = s.AddPath(nil)
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestModifyAndRemove(t *testing.T) {
	s, _, events := newSurface(t)
	id, err := s.AddShape(scene.KindCircle)
	require.NoError(t, err)

	radius := 75.0
	require.NoError(t, s.ModifyObject(id, scene.Patch{Radius: &radius}))
	assert.Equal(t, EventModified, (*events)[1].Kind)

	sc, _ := s.Scene()
	obj, _ := sc.Find(id)
	assert.Equal(t, 75.0, obj.(*scene.Circle).Radius)

	bad := "blue"
	assert.ErrorIs(t, s.ModifyObject(id, scene.Patch{Fill: &bad}), ErrInvalidColor)
	assert.ErrorIs(t, s.ModifyObject("missing", scene.Patch{Radius: &radius}), scene.ErrNotFound)

	require.NoError(t, s.RemoveObject(id))
	assert.Equal(t, EventRemoved, (*events)[2].Kind)
	assert.ErrorIs(t, s.RemoveObject(id), scene.ErrNotFound)

	_, _ = s.AddText("x")
	require.NoError(t, s.Clear())
	assert.Equal(t, 0, objectCount(t, (*events)[len(*events)-1].Snapshot))
}

func TestSerializationFailure_LeavesStateUntouched(t *testing.T) {
	s, rec, events := newSurface(t)

	_, err := s.AddPath([]scene.Point{{X: math.NaN(), Y: 1}})
	require.Error(t, err)

	assert.Empty(t, *events)
	assert.Equal(t, 1, rec.Count(notify.LevelError))
	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 0, objectCount(t, snap))

	_, err = s.AddText("still usable")
	assert.NoError(t, err)
}

func TestLoad_InvalidSnapshotKeepsScene(t *testing.T) {
	s, rec, events := newSurface(t)
	_, _ = s.AddText("keep me")

	err := s.Load([]byte(`{"objects": [`))
	require.ErrorIs(t, err, scene.ErrInvalidScene)
	assert.Equal(t, 1, rec.Count(notify.LevelError))

	snap, _ := s.Snapshot()
	assert.Equal(t, 1, objectCount(t, snap))

	require.NoError(t, s.Load([]byte(`{}`)))
	assert.Equal(t, EventLoaded, (*events)[len(*events)-1].Kind)
	snap, _ = s.Snapshot()
	assert.Equal(t, 0, objectCount(t, snap))
}

func TestUndoRedo_RestoresSnapshots(t *testing.T) {
	h := history.New(history.DefaultCapacity)
	s := New(WithHistory(h))
	var kinds []EventKind
	s.Subscribe(func(ev ChangeEvent) {
		kinds = append(kinds, ev.Kind)
		switch ev.Kind {
		case EventLoaded:
			h.Reset(ev.Snapshot)
		case EventRestored:
		default:
			h.Push(ev.Snapshot)
		}
	})

	require.NoError(t, s.Load([]byte(`{}`)))
	_, _ = s.AddText("one")
	_, _ = s.AddText("two")

	ok, err := s.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	snap, _ := s.Snapshot()
	assert.Equal(t, 1, objectCount(t, snap))

	ok, _ = s.Undo()
	require.True(t, ok)
	ok, _ = s.Undo()
	assert.False(t, ok)

	ok, _ = s.Redo()
	require.True(t, ok)
	snap, _ = s.Snapshot()
	assert.Equal(t, 1, objectCount(t, snap))
	assert.Equal(t, EventRestored, kinds[len(kinds)-1])
}

func TestUnsubscribe(t *testing.T) {
	s := New()
	n := 0
	unsubscribe := s.Subscribe(func(ChangeEvent) { n++ })
	_, _ = s.AddText("a")
	unsubscribe()
	_, _ = s.AddText("b")
	assert.Equal(t, 1, n)
}

func TestUploadFile_TooLargeAddsNothing(t *testing.T) {
	s, rec, events := newSurface(t)

	_, err := s.UploadFile("big.png", "image/png", make([]byte, DefaultMaxUploadBytes+1))
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, *events)
	assert.Equal(t, 1, rec.Count(notify.LevelError))

	snap, _ := s.Snapshot()
	assert.Equal(t, 0, objectCount(t, snap))
}

func TestUploadFile_Types(t *testing.T) {
	s, rec, _ := newSurface(t)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 800, 600))))
	id, err := s.UploadFile("photo.png", "image/png", buf.Bytes())
	require.NoError(t, err)

	sc, _ := s.Scene()
	obj, ok := sc.Find(id)
	require.True(t, ok)
	img := obj.(*scene.Image)
	assert.Equal(t, 400.0, img.Width)
	assert.Equal(t, 300.0, img.Height)
	assert.Contains(t, img.Src, "data:image/png;base64,")

	id, err = s.UploadFile("notes.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	sc, _ = s.Scene()
	obj, _ = sc.Find(id)
	assert.Equal(t, "📄 notes.pdf (PDF preview not supported)", obj.(*scene.Text).Text)

	_, err = s.UploadFile("song.mp3", "audio/mpeg", []byte("ID3"))
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
	assert.Equal(t, 1, rec.Count(notify.LevelError))
}

func TestWheel_ZoomsAroundPointAndClamps(t *testing.T) {
	s := New()

	v := s.Wheel(-100, 200, 100)
	want := math.Pow(0.999, -100)
	assert.InDelta(t, want, v.Zoom, 1e-9)
	// 고정점 아래 월드 좌표는 그대로
	assert.InDelta(t, 200.0, (200-v.PanX)/v.Zoom, 1e-9)
	assert.InDelta(t, 100.0, (100-v.PanY)/v.Zoom, 1e-9)

	v = s.Wheel(-100000, 0, 0)
	assert.Equal(t, float64(MaxZoom), v.Zoom)
	v = s.Wheel(100000, 0, 0)
	assert.Equal(t, MinZoom, v.Zoom)

	v = s.ResetZoom()
	assert.Equal(t, Viewport{Zoom: 1}, v)
}

func TestDrag_PansOnlyWithPanToolOrAlt(t *testing.T) {
	s := New()

	_, moved := s.Drag(10, 5, false)
	assert.False(t, moved)

	v, moved := s.Drag(10, 5, true)
	assert.True(t, moved)
	assert.Equal(t, 10.0, v.PanX)

	require.NoError(t, s.SetTool(ToolPan))
	v, moved = s.Drag(-4, 1, false)
	assert.True(t, moved)
	assert.Equal(t, 6.0, v.PanX)
	assert.Equal(t, 6.0, v.PanY)
}

func TestExportAs(t *testing.T) {
	s := New()
	_, _ = s.AddShape(scene.KindTriangle)

	var buf bytes.Buffer
	require.NoError(t, s.ExportAs(&buf, scene.FormatSVG, scene.DefaultExportOptions()))
	assert.Contains(t, buf.String(), "<svg")

	var ev ChangeEvent
	s.Subscribe(func(e ChangeEvent) { ev = e })
	_, _ = s.AddText("t")
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(ev.Snapshot, &decoded))
	assert.Len(t, decoded["objects"], 2)
}
