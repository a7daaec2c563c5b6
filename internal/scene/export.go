package scene

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

// Format 내보내기 포맷
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatSVG  Format = "svg"
	FormatPDF  Format = "pdf"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat 문자열을 포맷으로 변환 (jpg 는 jpeg 로 취급)
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png", "":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "svg":
		return FormatSVG, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType 포맷별 MIME 타입
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatSVG:
		return "image/svg+xml"
	case FormatPDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

// Extension 파일 확장자
func (f Format) Extension() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return "." + string(f)
}

// ExportOptions 내보내기 옵션
type ExportOptions struct {
	Width     int
	Height    int
	Watermark string
}

// DefaultExportOptions 16:9 기본 캔버스
func DefaultExportOptions() ExportOptions {
	return ExportOptions{Width: 1280, Height: 720}
}

func (o ExportOptions) normalized() ExportOptions {
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	return o
}

// Export 씬을 지정 포맷으로 w 에 기록
func Export(w io.Writer, s *Scene, f Format, opts ExportOptions) error {
	opts = opts.normalized()
	switch f {
	case FormatPNG:
		return Rasterize(s, opts).EncodePNG(w)
	case FormatJPEG:
		return jpeg.Encode(w, Rasterize(s, opts).Image(), &jpeg.Options{Quality: 90})
	case FormatSVG:
		return writeSVG(w, s, opts)
	case FormatPDF:
		return writePDF(w, s, opts)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// Rasterize 씬을 gg 컨텍스트에 그린다
func Rasterize(s *Scene, opts ExportOptions) *gg.Context {
	opts = opts.normalized()
	dc := gg.NewContext(opts.Width, opts.Height)

	bg, ok := ParseHexColor(s.Background)
	if !ok {
		bg = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	}
	dc.SetColor(bg)
	dc.Clear()

	dc.SetLineCapRound()
	dc.SetLineJoinRound()

	for _, obj := range s.Objects {
		b := obj.base()
		dc.Push()
		if b.Angle != 0 {
			cx, cy := center(obj)
			dc.RotateAbout(gg.Radians(b.Angle), cx, cy)
		}
		switch o := obj.(type) {
		case *Path:
			drawPath(dc, o)
		case *Rect:
			dc.DrawRectangle(o.Left, o.Top, o.Width, o.Height)
			fillAndStroke(dc, b)
		case *Circle:
			dc.DrawCircle(o.Left+o.Radius, o.Top+o.Radius, o.Radius)
			fillAndStroke(dc, b)
		case *Triangle:
			dc.MoveTo(o.Left+o.Width/2, o.Top)
			dc.LineTo(o.Left+o.Width, o.Top+o.Height)
			dc.LineTo(o.Left, o.Top+o.Height)
			dc.ClosePath()
			fillAndStroke(dc, b)
		case *Line:
			dc.DrawLine(o.Left, o.Top, o.X2, o.Y2)
			fillAndStroke(dc, &Base{Stroke: o.Stroke, StrokeWidth: o.StrokeWidth})
		case *Text:
			drawText(dc, o)
		case *Image:
			drawImage(dc, o)
		}
		dc.Pop()
	}

	if opts.Watermark != "" {
		dc.SetRGBA(0, 0, 0, 0.35)
		dc.DrawStringAnchored(opts.Watermark, float64(opts.Width)-12, float64(opts.Height)-12, 1, 0)
	}
	return dc
}

func drawPath(dc *gg.Context, p *Path) {
	if len(p.Points) == 0 {
		return
	}
	c, ok := ParseHexColor(p.Stroke)
	if !ok {
		return
	}
	dc.SetColor(c)
	width := lineWidth(p.StrokeWidth)
	if len(p.Points) == 1 {
		dc.DrawCircle(p.Points[0].X, p.Points[0].Y, width/2)
		dc.Fill()
		return
	}
	dc.SetLineWidth(width)
	dc.MoveTo(p.Points[0].X, p.Points[0].Y)
	for _, pt := range p.Points[1:] {
		dc.LineTo(pt.X, pt.Y)
	}
	dc.Stroke()
}

func fillAndStroke(dc *gg.Context, b *Base) {
	fill, hasFill := ParseHexColor(b.Fill)
	stroke, hasStroke := ParseHexColor(b.Stroke)
	if hasFill {
		dc.SetColor(fill)
		if hasStroke {
			dc.FillPreserve()
		} else {
			dc.Fill()
		}
	}
	if hasStroke {
		dc.SetColor(stroke)
		dc.SetLineWidth(lineWidth(b.StrokeWidth))
		dc.Stroke()
	}
	if !hasFill && !hasStroke {
		dc.ClearPath()
	}
}

func drawText(dc *gg.Context, t *Text) {
	c, ok := ParseHexColor(t.Fill)
	if !ok {
		c, ok = ParseHexColor(t.Stroke)
	}
	if !ok {
		c = color.NRGBA{A: 0xff}
	}
	dc.SetColor(c)
	lineHeight := t.FontSize * 1.16
	if lineHeight <= 0 {
		lineHeight = dc.FontHeight() * 1.5
	}
	for i, line := range strings.Split(t.Text, "\n") {
		dc.DrawStringAnchored(line, t.Left, t.Top+float64(i)*lineHeight, 0, 1)
	}
}

func drawImage(dc *gg.Context, im *Image) {
	src, err := decodeImage(im.Src)
	if err != nil {
		return
	}
	w, h := int(im.Width), int(im.Height)
	if w <= 0 || h <= 0 {
		dc.DrawImage(src, int(im.Left), int(im.Top))
		return
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	dc.DrawImage(dst, int(im.Left), int(im.Top))
}

func decodeImage(src string) (image.Image, error) {
	_, data, err := DecodeDataURL(src)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// center 회전 기준점 (bounding box 중심)
func center(obj Object) (float64, float64) {
	b := obj.base()
	switch o := obj.(type) {
	case *Rect:
		return o.Left + o.Width/2, o.Top + o.Height/2
	case *Triangle:
		return o.Left + o.Width/2, o.Top + o.Height/2
	case *Image:
		return o.Left + o.Width/2, o.Top + o.Height/2
	case *Circle:
		return o.Left + o.Radius, o.Top + o.Radius
	case *Line:
		return (o.Left + o.X2) / 2, (o.Top + o.Y2) / 2
	}
	return b.Left, b.Top
}

func lineWidth(w float64) float64 {
	if w <= 0 {
		return 1
	}
	return w
}
