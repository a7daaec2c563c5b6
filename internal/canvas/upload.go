package canvas

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"tutorbox-backend/internal/notify"
	"tutorbox-backend/internal/scene"
)

const (
	mimePDF = "application/pdf"
	// maxImageWidth 업로드 이미지를 이 너비 이하로 축소해서 배치
	maxImageWidth = 400
	// fallbackImageSize 크기를 읽을 수 없는 이미지 (svg 등)
	fallbackImageSize = 200
)

// UploadFile 파일을 씬에 추가. 이미지는 인라인 image, PDF 는 안내 텍스트.
// 거부된 파일은 아무것도 추가하지 않고 에러 토스트를 띄운다.
func (s *Surface) UploadFile(name, mimeType string, data []byte) (string, error) {
	if int64(len(data)) > s.maxUpload {
		s.notifier.Notify(notify.Error("File too large", fmt.Sprintf("%s is larger than %dMB.", name, s.maxUpload/(1024*1024))))
		return "", fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(data))
	}

	mimeType = normalizeMIME(mimeType, data)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return s.addImage(mimeType, data)
	case mimeType == mimePDF:
		return s.AddText(fmt.Sprintf("📄 %s (PDF preview not supported)", name))
	default:
		s.notifier.Notify(notify.Error("Unsupported file", "Only images and PDF files can be added to the board."))
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, mimeType)
	}
}

func (s *Surface) addImage(mimeType string, data []byte) (string, error) {
	width, height := float64(fallbackImageSize), float64(fallbackImageSize)
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil && cfg.Width > 0 && cfg.Height > 0 {
		width, height = float64(cfg.Width), float64(cfg.Height)
	}
	if width > maxImageWidth {
		height = height * maxImageWidth / width
		width = maxImageWidth
	}

	id := s.newID()
	obj := &scene.Image{
		Base:   scene.Base{ID: id, Left: placeLeft, Top: placeTop},
		Width:  width,
		Height: height,
		Src:    scene.EncodeDataURL(mimeType, data),
	}
	return id, s.mutate(EventAdded, id, func(sc *scene.Scene) error {
		sc.Append(obj)
		return nil
	})
}

// normalizeMIME 파라미터 제거, 비어있으면 내용으로 추정
func normalizeMIME(mimeType string, data []byte) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = mimeType[:i]
		}
	}
	return mimeType
}
