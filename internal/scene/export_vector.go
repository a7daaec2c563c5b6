package scene

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

func writeSVG(w io.Writer, s *Scene, opts ExportOptions) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		opts.Width, opts.Height, opts.Width, opts.Height)
	fmt.Fprintf(&sb, `<rect width="100%%" height="100%%" fill="%s"/>`, svgColor(s.Background, "#ffffff"))

	for _, obj := range s.Objects {
		b := obj.base()
		transform := ""
		if b.Angle != 0 {
			cx, cy := center(obj)
			transform = fmt.Sprintf(` transform="rotate(%g %g %g)"`, b.Angle, cx, cy)
		}
		paint := fmt.Sprintf(`fill="%s" stroke="%s" stroke-width="%g"`,
			svgColor(b.Fill, "none"), svgColor(b.Stroke, "none"), lineWidth(b.StrokeWidth))

		switch o := obj.(type) {
		case *Path:
			if len(o.Points) == 0 {
				continue
			}
			pts := make([]string, len(o.Points))
			for i, pt := range o.Points {
				pts[i] = fmt.Sprintf("%g,%g", pt.X, pt.Y)
			}
			fmt.Fprintf(&sb, `<polyline points="%s" fill="none" stroke="%s" stroke-width="%g" stroke-linecap="round" stroke-linejoin="round"%s/>`,
				strings.Join(pts, " "), svgColor(o.Stroke, "#000000"), lineWidth(o.StrokeWidth), transform)
		case *Rect:
			fmt.Fprintf(&sb, `<rect x="%g" y="%g" width="%g" height="%g" %s%s/>`, o.Left, o.Top, o.Width, o.Height, paint, transform)
		case *Circle:
			fmt.Fprintf(&sb, `<circle cx="%g" cy="%g" r="%g" %s%s/>`, o.Left+o.Radius, o.Top+o.Radius, o.Radius, paint, transform)
		case *Triangle:
			fmt.Fprintf(&sb, `<polygon points="%g,%g %g,%g %g,%g" %s%s/>`,
				o.Left+o.Width/2, o.Top, o.Left+o.Width, o.Top+o.Height, o.Left, o.Top+o.Height, paint, transform)
		case *Line:
			fmt.Fprintf(&sb, `<line x1="%g" y1="%g" x2="%g" y2="%g" stroke="%s" stroke-width="%g"%s/>`,
				o.Left, o.Top, o.X2, o.Y2, svgColor(o.Stroke, "#000000"), lineWidth(o.StrokeWidth), transform)
		case *Text:
			size := o.FontSize
			if size <= 0 {
				size = 16
			}
			fmt.Fprintf(&sb, `<text x="%g" y="%g" font-size="%g" font-family="%s" fill="%s" dominant-baseline="hanging"%s>%s</text>`,
				o.Left, o.Top, size, html.EscapeString(fontFamily(o.FontFamily)), svgColor(o.Fill, "#000000"), transform, html.EscapeString(o.Text))
		case *Image:
			fmt.Fprintf(&sb, `<image x="%g" y="%g" width="%g" height="%g" href="%s"%s/>`,
				o.Left, o.Top, o.Width, o.Height, html.EscapeString(o.Src), transform)
		}
	}

	if opts.Watermark != "" {
		fmt.Fprintf(&sb, `<text x="%d" y="%d" text-anchor="end" fill="#000000" fill-opacity="0.35">%s</text>`,
			opts.Width-12, opts.Height-12, html.EscapeString(opts.Watermark))
	}
	sb.WriteString(`</svg>`)

	_, err := io.WriteString(w, sb.String())
	return err
}

func svgColor(c, fallback string) string {
	if _, ok := ParseHexColor(c); ok {
		return c
	}
	return fallback
}

func fontFamily(f string) string {
	if f == "" {
		return "Arial"
	}
	return f
}

func writePDF(w io.Writer, s *Scene, opts ExportOptions) error {
	width, height := float64(opts.Width), float64(opts.Height)
	orientation := "L"
	if height > width {
		orientation = "P"
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: width, Ht: height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if bg, ok := ParseHexColor(s.Background); ok {
		pdf.SetFillColor(int(bg.R), int(bg.G), int(bg.B))
		pdf.Rect(0, 0, width, height, "F")
	}
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	for i, obj := range s.Objects {
		b := obj.base()
		rotated := b.Angle != 0
		if rotated {
			cx, cy := center(obj)
			pdf.TransformBegin()
			pdf.TransformRotate(-b.Angle, cx, cy)
		}

		switch o := obj.(type) {
		case *Path:
			if len(o.Points) > 0 && pdfStroke(pdf, &o.Base) {
				pdf.MoveTo(o.Points[0].X, o.Points[0].Y)
				for _, pt := range o.Points[1:] {
					pdf.LineTo(pt.X, pt.Y)
				}
				pdf.DrawPath("D")
			}
		case *Rect:
			if style := pdfPaint(pdf, b); style != "" {
				pdf.Rect(o.Left, o.Top, o.Width, o.Height, style)
			}
		case *Circle:
			if style := pdfPaint(pdf, b); style != "" {
				pdf.Circle(o.Left+o.Radius, o.Top+o.Radius, o.Radius, style)
			}
		case *Triangle:
			if style := pdfPaint(pdf, b); style != "" {
				pdf.Polygon([]gofpdf.PointType{
					{X: o.Left + o.Width/2, Y: o.Top},
					{X: o.Left + o.Width, Y: o.Top + o.Height},
					{X: o.Left, Y: o.Top + o.Height},
				}, style)
			}
		case *Line:
			if pdfStroke(pdf, b) {
				pdf.Line(o.Left, o.Top, o.X2, o.Y2)
			}
		case *Text:
			c, ok := ParseHexColor(o.Fill)
			if !ok {
				c, _ = ParseHexColor("#000000")
			}
			size := o.FontSize
			if size <= 0 {
				size = 16
			}
			pdf.SetTextColor(int(c.R), int(c.G), int(c.B))
			pdf.SetFont("Helvetica", "", size)
			for j, line := range strings.Split(o.Text, "\n") {
				pdf.Text(o.Left, o.Top+size*(float64(j)+1), tr(line))
			}
		case *Image:
			mimeType, data, err := DecodeDataURL(o.Src)
			if err != nil {
				break
			}
			imageType := pdfImageType(mimeType)
			if imageType == "" {
				break
			}
			name := fmt.Sprintf("img-%d", i)
			imgOpts := gofpdf.ImageOptions{ImageType: imageType}
			pdf.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(data))
			pdf.ImageOptions(name, o.Left, o.Top, o.Width, o.Height, false, imgOpts, 0, "")
		}

		if rotated {
			pdf.TransformEnd()
		}
	}

	if opts.Watermark != "" {
		pdf.SetTextColor(140, 140, 140)
		pdf.SetFont("Helvetica", "", 12)
		tw := pdf.GetStringWidth(tr(opts.Watermark))
		pdf.Text(width-12-tw, height-12, tr(opts.Watermark))
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

func pdfStroke(pdf *gofpdf.Fpdf, b *Base) bool {
	c, ok := ParseHexColor(b.Stroke)
	if !ok {
		return false
	}
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
	pdf.SetLineWidth(lineWidth(b.StrokeWidth))
	return true
}

// pdfPaint 채우기/테두리 색 설정 후 gofpdf 스타일 문자열 반환 ("" 이면 그릴 것 없음)
func pdfPaint(pdf *gofpdf.Fpdf, b *Base) string {
	style := ""
	if c, ok := ParseHexColor(b.Fill); ok {
		pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
		style += "F"
	}
	if pdfStroke(pdf, b) {
		style += "D"
	}
	return style
}

func pdfImageType(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "PNG"
	case "image/jpeg", "image/jpg":
		return "JPG"
	case "image/gif":
		return "GIF"
	}
	return ""
}
