package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"tutorbox-backend/internal/auth"
	"tutorbox-backend/internal/canvas"
	"tutorbox-backend/internal/editor"
	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/model"
	"tutorbox-backend/internal/scene"
	"tutorbox-backend/internal/service"
	"tutorbox-backend/internal/session"
	"tutorbox-backend/internal/slides"
	"tutorbox-backend/internal/storage"
)

// EditorHandler 화이트보드 에디터 REST 핸들러
type EditorHandler struct {
	hub      *editor.Hub
	sessions *session.Registry
	accounts *service.AccountService
	lessons  *service.LessonService
	s3       *storage.S3Service
	log      *logger.Logger
}

// NewEditorHandler EditorHandler 생성. s3 가 nil 이면 내보내기 업로드만 비활성화된다.
func NewEditorHandler(hub *editor.Hub, sessions *session.Registry, accounts *service.AccountService, lessons *service.LessonService, s3 *storage.S3Service, log *logger.Logger) *EditorHandler {
	return &EditorHandler{
		hub:      hub,
		sessions: sessions,
		accounts: accounts,
		lessons:  lessons,
		s3:       s3,
		log:      log,
	}
}

// ToolRequest 도구 변경
type ToolRequest struct {
	Tool string `json:"tool" validate:"required,oneof=select pen eraser shape text pan zoom"`
}

// BrushRequest 브러시 변경 (nil 필드는 유지)
type BrushRequest struct {
	Color *string  `json:"color" validate:"omitempty,hexcolor"`
	Size  *float64 `json:"size" validate:"omitempty,gte=1,lte=100"`
}

// ShapeRequest 도형 추가
type ShapeRequest struct {
	Shape string `json:"shape" validate:"required,oneof=rect circle triangle line"`
}

// TextRequest 텍스트 추가
type TextRequest struct {
	Text string `json:"text" validate:"required,notblank,max=5000"`
}

// PathRequest 펜/지우개 경로 추가
type PathRequest struct {
	Points []scene.Point `json:"points" validate:"required,min=1"`
}

// ZoomRequest 마우스 휠 줌
type ZoomRequest struct {
	DeltaY float64 `json:"deltaY"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// PanRequest 드래그 팬 (alt 누른 상태이거나 pan 도구일 때만 적용)
type PanRequest struct {
	DX  float64 `json:"dx"`
	DY  float64 `json:"dy"`
	Alt bool    `json:"alt"`
}

// AutoSaveRequest 자동 저장 토글
type AutoSaveRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// sessionFor 요청 사용자의 세션. 없으면 DB 사용자 정보로 만든다.
func (h *EditorHandler) sessionFor(c *fiber.Ctx) (*session.Session, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return nil, err
	}
	if sess, ok := h.sessions.Get(userID); ok && !sess.IsClosed() {
		return sess, nil
	}
	user, err := h.accounts.GetUser(c.UserContext(), userID)
	if err != nil {
		return nil, err
	}
	return h.sessions.Acquire(session.FromUser(user)), nil
}

// current 열린 에디터 조회
func (h *EditorHandler) current(c *fiber.Ctx) (*editor.Editor, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return nil, err
	}
	lessonID, err := localID(c, "lessonID", "lessonId")
	if err != nil {
		return nil, err
	}
	return h.hub.Get(userID, lessonID)
}

// editorError 도메인 에러를 HTTP 상태로 변환
func (h *EditorHandler) editorError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, editor.ErrNotOpen), errors.Is(err, editor.ErrClosed):
		status = fiber.StatusConflict
	case errors.Is(err, canvas.ErrInvalidTool),
		errors.Is(err, canvas.ErrInvalidColor),
		errors.Is(err, canvas.ErrInvalidBrushSize),
		errors.Is(err, canvas.ErrInvalidShape),
		errors.Is(err, canvas.ErrEmptyText),
		errors.Is(err, canvas.ErrEmptyPath),
		errors.Is(err, canvas.ErrNotDrawing),
		errors.Is(err, slides.ErrIndexOutOfRange),
		errors.Is(err, scene.ErrUnsupportedFormat),
		errors.Is(err, scene.ErrInvalidScene):
		status = fiber.StatusBadRequest
	case errors.Is(err, scene.ErrNotFound), errors.Is(err, slides.ErrSlideNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, canvas.ErrFileTooLarge):
		status = fiber.StatusRequestEntityTooLarge
	case errors.Is(err, canvas.ErrUnsupportedFileType):
		status = fiber.StatusUnsupportedMediaType
	case errors.Is(err, errInvalidParam):
		status = fiber.StatusBadRequest
	case errors.Is(err, auth.ErrNoClaims), errors.Is(err, service.ErrUserNotFound):
		status = fiber.StatusUnauthorized
	}
	if status == fiber.StatusInternalServerError {
		h.log.Error("editor request failed", "path", c.Path(), "error", err)
		return c.Status(status).JSON(fiber.Map{"error": "editor operation failed"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// withEditor 열린 에디터에 대해 fn 실행
func (h *EditorHandler) withEditor(c *fiber.Ctx, fn func(e *editor.Editor) error) error {
	e, err := h.current(c)
	if err != nil {
		return h.editorError(c, err)
	}
	return fn(e)
}

func (h *EditorHandler) respondState(c *fiber.Ctx, e *editor.Editor) error {
	state, err := e.State()
	if err != nil {
		return h.editorError(c, err)
	}
	return c.JSON(state)
}

// Open 에디터 열기 (이미 열려 있으면 그대로)
func (h *EditorHandler) Open(c *fiber.Ctx) error {
	lessonID, err := localID(c, "lessonID", "lessonId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	sess, err := h.sessionFor(c)
	if err != nil {
		return h.editorError(c, err)
	}

	e, err := h.hub.Open(c.UserContext(), sess, lessonID)
	if err != nil {
		return h.editorError(c, err)
	}
	return h.respondState(c, e)
}

// Close 에디터 닫기. 대기 중인 획을 저장한다.
func (h *EditorHandler) Close(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	lessonID, err := localID(c, "lessonID", "lessonId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.hub.Close(c.UserContext(), userID, lessonID); err != nil {
		return h.editorError(c, err)
	}
	return c.JSON(fiber.Map{"closed": true})
}

// GetState 에디터 상태
func (h *EditorHandler) GetState(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		return h.respondState(c, e)
	})
}

// Save 현재 슬라이드 저장
func (h *EditorHandler) Save(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		if err := e.Save(c.UserContext()); err != nil {
			return h.editorError(c, err)
		}
		return c.JSON(fiber.Map{"saved": true})
	})
}

// Flush 대기 중인 획 즉시 저장
func (h *EditorHandler) Flush(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		if err := e.Flush(c.UserContext()); err != nil {
			return h.editorError(c, err)
		}
		return c.JSON(fiber.Map{"pending": e.Strokes().Pending()})
	})
}

// Undo 실행 취소
func (h *EditorHandler) Undo(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		applied, err := e.Canvas().Undo()
		if err != nil {
			return h.editorError(c, err)
		}
		return c.JSON(fiber.Map{"applied": applied})
	})
}

// Redo 다시 실행
func (h *EditorHandler) Redo(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		applied, err := e.Canvas().Redo()
		if err != nil {
			return h.editorError(c, err)
		}
		return c.JSON(fiber.Map{"applied": applied})
	})
}

// SetTool 도구 변경
func (h *EditorHandler) SetTool(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		var req ToolRequest
		if ok, err := parseAndValidate(c, &req); !ok {
			return err
		}
		if err := e.Canvas().SetTool(canvas.Tool(req.Tool)); err != nil {
			return h.editorError(c, err)
		}
		return c.JSON(fiber.Map{"tool": e.Canvas().Tool()})
	})
}

// SetBrush 브러시 색/굵기 변경
func (h *EditorHandler) SetBrush(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		var req BrushRequest
		if ok, err := parseAndValidate(c, &req); !ok {
			return err
		}
		if req.Color != nil {
			if err := e.Canvas().SetBrushColor(*req.Color); err != nil {
				return h.editorError(c, err)
			}
		}
		if req.Size != nil {
			if err := e.Canvas().SetBrushSize(*req.Size); err != nil {
				return h.editorError(c, err)
			}
		}
		return c.JSON(e.Canvas().Brush())
	})
}

// AddShape 도형 추가
func (h *EditorHandler) AddShape(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		var req ShapeRequest
		if ok, err := parseAndValidate(c, &req); !ok {
			return err
		}
		id, err := e.Canvas().AddShape(scene.Kind(req.Shape))
		if err != nil {
			return h.editorError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
	})
}

// AddText 텍스트 추가
func (h *EditorHandler) AddText(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		var req TextRequest
		if ok, err := parseAndValidate(c, &req); !ok {
			return err
		}
		id, err := e.Canvas().AddText(req.Text)
		if err != nil {
			return h.editorError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
	})
}

// AddPath 펜/지우개 경로 추가 (pen 이면 획 로그에도 쌓인다)
func (h *EditorHandler) AddPath(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		var req PathRequest
		if ok, err := parseAndValidate(c, &req); !ok {
			return err
		}
		id, err := e.Canvas().AddPath(req.Points)
		if err != nil {
			return h.editorError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
	})
}

// ModifyObject 오브젝트 수정
func (h *EditorHandler) ModifyObject(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		var patch scene.Patch
		if err := c.BodyParser(&patch); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
		if err := e.Canvas().ModifyObject(c.Params("objectId"), patch); err != nil {
			return h.editorError(c, err)
		}
		return c.JSON(fiber.Map{"id": c.Params("objectId")})
	})
}

// RemoveObject 오브젝트 삭제
func (h *EditorHandler) RemoveObject(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		if err := e.Canvas().RemoveObject(c.Params("objectId")); err != nil {
			return h.editorError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

// Clear 캔버스 비우기
func (h *EditorHandler) Clear(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		if err := e.Canvas().Clear(); err != nil {
			return h.editorError(c, err)
		}
		return c.JSON(fiber.Map{"cleared": true})
	})
}

// Upload 이미지/PDF 업로드 (multipart "file")
func (h *EditorHandler) Upload(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "file is required",
			})
		}
		f, err := fh.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "failed to read file",
			})
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "failed to read file",
			})
		}

		id, err := e.Canvas().UploadFile(fh.Filename, fh.Header.Get("Content-Type"), data)
		if err != nil {
			return h.editorError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
	})
}

// Zoom 휠 줌 (포인터 기준)
func (h *EditorHandler) Zoom(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		var req ZoomRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
		return c.JSON(e.Canvas().Wheel(req.DeltaY, req.X, req.Y))
	})
}

// Pan 드래그 팬
func (h *EditorHandler) Pan(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		var req PanRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
		vp, moved := e.Canvas().Drag(req.DX, req.DY, req.Alt)
		return c.JSON(fiber.Map{"viewport": vp, "moved": moved})
	})
}

// ResetZoom 줌/팬 초기화
func (h *EditorHandler) ResetZoom(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		return c.JSON(e.Canvas().ResetZoom())
	})
}

// SetAutoSave 자동 저장 토글
func (h *EditorHandler) SetAutoSave(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		var req AutoSaveRequest
		if ok, err := parseAndValidate(c, &req); !ok {
			return err
		}
		if err := e.SetAutoSave(c.UserContext(), *req.Enabled); err != nil {
			return h.editorError(c, err)
		}
		return c.JSON(e.Flags())
	})
}

// SetFlags 카메라/녹화/협업 플래그
func (h *EditorHandler) SetFlags(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		var req editor.FlagsPatch
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
		return c.JSON(e.SetFlags(req))
	})
}

// AddSlide 슬라이드 추가
func (h *EditorHandler) AddSlide(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		slide, err := e.Slides().Add(c.UserContext())
		if err != nil {
			return h.editorError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(slide)
	})
}

// SelectSlide 슬라이드 전환 (:index)
func (h *EditorHandler) SelectSlide(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		index, err := strconv.Atoi(c.Params("index"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid slide index",
			})
		}
		if err := e.SelectSlide(c.UserContext(), index); err != nil {
			return h.editorError(c, err)
		}
		return h.respondState(c, e)
	})
}

// DuplicateSlide 슬라이드 복제 (맨 뒤에 추가)
func (h *EditorHandler) DuplicateSlide(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		slideID, err := strconv.ParseInt(c.Params("slideId"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid slide id",
			})
		}
		slide, err := e.Slides().Duplicate(c.UserContext(), slideID)
		if err != nil {
			return h.editorError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(slide)
	})
}

// DeleteSlide 슬라이드 삭제
func (h *EditorHandler) DeleteSlide(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		slideID, err := strconv.ParseInt(c.Params("slideId"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid slide id",
			})
		}
		if err := e.DeleteSlide(c.UserContext(), slideID); err != nil {
			return h.editorError(c, err)
		}
		return h.respondState(c, e)
	})
}

// Export 현재 슬라이드 내보내기 (?format=png|jpeg|svg|pdf, ?upload=true 면 S3 업로드 후 URL 반환)
func (h *EditorHandler) Export(c *fiber.Ctx) error {
	return h.withEditor(c, func(e *editor.Editor) error {
		format, err := scene.ParseFormat(c.Query("format"))
		if err != nil {
			return h.editorError(c, err)
		}

		opts := e.ExportOptions(h.accounts.WatermarkFor(c.UserContext(), e.UserID()))
		var buf bytes.Buffer
		if err := e.Canvas().ExportAs(&buf, format, opts); err != nil {
			return h.editorError(c, err)
		}

		if !c.QueryBool("upload") {
			c.Set(fiber.HeaderContentType, format.ContentType())
			c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="slide%s"`, format.Extension()))
			return c.Send(buf.Bytes())
		}

		if h.s3 == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "S3 service is not configured",
			})
		}
		url, key, err := h.uploadExport(c.UserContext(), e.LessonID(), format, buf.Bytes())
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "failed to upload export",
			})
		}
		return c.JSON(fiber.Map{
			"download_url": url,
			"key":          key,
			"format":       format,
		})
	})
}

// uploadExport 내보내기 결과를 S3 에 올리고 레슨 내보내기 상태를 갱신
func (h *EditorHandler) uploadExport(ctx context.Context, lessonID int64, format scene.Format, data []byte) (string, string, error) {
	setStatus := func(s model.ExportStatus) {
		if err := h.lessons.SetExportStatus(ctx, lessonID, s); err != nil {
			h.log.Warn("export status update failed", "lesson_id", lessonID, "status", s, "error", err)
		}
	}

	setStatus(model.ExportStatusProcessing)
	key := storage.ObjectKey(storage.PrefixExports, lessonID, "slide"+format.Extension())
	if err := h.s3.PutObject(ctx, key, format.ContentType(), data); err != nil {
		h.log.Error("export upload failed", "lesson_id", lessonID, "error", err)
		setStatus(model.ExportStatusFailed)
		return "", "", err
	}
	url, err := h.s3.GetFileURL(ctx, key)
	if err != nil {
		setStatus(model.ExportStatusFailed)
		return "", "", err
	}
	setStatus(model.ExportStatusCompleted)
	return url, key, nil
}
