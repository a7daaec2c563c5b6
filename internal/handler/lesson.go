package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/model"
	"tutorbox-backend/internal/service"
)

// LessonHandler 레슨/슬라이드/획 로그 핸들러
type LessonHandler struct {
	lessons *service.LessonService
	slides  *service.SlideService
	log     *logger.Logger
}

// NewLessonHandler LessonHandler 생성
func NewLessonHandler(lessons *service.LessonService, slides *service.SlideService, log *logger.Logger) *LessonHandler {
	return &LessonHandler{lessons: lessons, slides: slides, log: log}
}

// CreateLessonRequest 레슨 생성 요청 (제목 생략 가능)
type CreateLessonRequest struct {
	Title string `json:"title" validate:"max=200"`
}

// RenameLessonRequest 레슨 제목 변경 요청
type RenameLessonRequest struct {
	Title string `json:"title" validate:"required,notblank,max=200"`
}

// ExportStatusRequest 내보내기 상태 변경 요청
type ExportStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=none pending processing completed failed"`
}

// ListLessons 내 레슨 목록
func (h *LessonHandler) ListLessons(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	lessons, err := h.lessons.ListLessons(c.UserContext(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list lessons",
		})
	}
	return c.JSON(fiber.Map{
		"lessons": lessons,
		"total":   len(lessons),
	})
}

// CreateLesson 레슨 생성 (첫 슬라이드 포함)
func (h *LessonHandler) CreateLesson(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req CreateLessonRequest
	if len(c.Body()) > 0 {
		if ok, err := parseAndValidate(c, &req); !ok {
			return err
		}
	}

	lesson, err := h.lessons.CreateLesson(c.UserContext(), userID, sanitizeString(req.Title))
	if err != nil {
		h.log.Error("lesson create failed", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create lesson",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(lesson)
}

// GetLesson 레슨 조회
func (h *LessonHandler) GetLesson(c *fiber.Ctx) error {
	lessonID, err := localID(c, "lessonID", "lessonId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	lesson, err := h.lessons.GetLesson(c.UserContext(), lessonID)
	if errors.Is(err, service.ErrLessonNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load lesson",
		})
	}
	return c.JSON(lesson)
}

// RenameLesson 레슨 제목 변경
func (h *LessonHandler) RenameLesson(c *fiber.Ctx) error {
	lessonID, err := localID(c, "lessonID", "lessonId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req RenameLessonRequest
	if ok, err := parseAndValidate(c, &req); !ok {
		return err
	}

	lesson, err := h.lessons.RenameLesson(c.UserContext(), lessonID, sanitizeString(req.Title))
	if errors.Is(err, service.ErrLessonNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to rename lesson",
		})
	}
	return c.JSON(lesson)
}

// SetExportStatus 내보내기 상태 변경
func (h *LessonHandler) SetExportStatus(c *fiber.Ctx) error {
	lessonID, err := localID(c, "lessonID", "lessonId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req ExportStatusRequest
	if ok, err := parseAndValidate(c, &req); !ok {
		return err
	}

	err = h.lessons.SetExportStatus(c.UserContext(), lessonID, model.ExportStatus(req.Status))
	switch {
	case errors.Is(err, service.ErrLessonNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidExportStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update export status",
		})
	}
	return c.JSON(fiber.Map{"export_status": req.Status})
}

// ListSlides 레슨 슬라이드 목록 (order_index 순)
func (h *LessonHandler) ListSlides(c *fiber.Ctx) error {
	lessonID, err := localID(c, "lessonID", "lessonId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	slides, err := h.slides.ListSlides(c.UserContext(), lessonID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list slides",
		})
	}
	return c.JSON(fiber.Map{
		"slides": slides,
		"total":  len(slides),
	})
}

// ListStrokes 슬라이드 획 로그
func (h *LessonHandler) ListStrokes(c *fiber.Ctx) error {
	slideID, err := localID(c, "slideID", "slideId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	strokes, err := h.slides.ListStrokes(c.UserContext(), slideID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list strokes",
		})
	}
	return c.JSON(fiber.Map{
		"strokes": strokes,
		"total":   len(strokes),
	})
}

// DeleteStrokes 슬라이드 획 로그 삭제
func (h *LessonHandler) DeleteStrokes(c *fiber.Ctx) error {
	slideID, err := localID(c, "slideID", "slideId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	deleted, err := h.slides.DeleteStrokes(c.UserContext(), slideID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete strokes",
		})
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}
