package middleware

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"tutorbox-backend/internal/auth"
	"tutorbox-backend/internal/service"
)

// OwnerLookup 리소스 ID 로 소유자 ID 를 찾는 함수
type OwnerLookup func(ctx context.Context, id int64) (int64, error)

// LessonMiddleware 레슨/슬라이드/녹화 소유권 미들웨어
type LessonMiddleware struct {
	lessons    *service.LessonService
	slides     *service.SlideService
	recordings *service.RecordingService
}

// NewLessonMiddleware LessonMiddleware 생성
func NewLessonMiddleware(lessons *service.LessonService, slides *service.SlideService, recordings *service.RecordingService) *LessonMiddleware {
	return &LessonMiddleware{lessons: lessons, slides: slides, recordings: recordings}
}

// paramID URL 파라미터에서 양의 정수 ID 추출
func paramID(c *fiber.Ctx, name string) (int64, error) {
	idStr := c.Params(name)
	if idStr == "" {
		return 0, fiber.NewError(fiber.StatusBadRequest, name+" is required")
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// RequireLessonOwner :lessonId 레슨의 소유자 필수
func (m *LessonMiddleware) RequireLessonOwner() fiber.Handler {
	return m.requireOwner("lessonId", "lessonID", m.lessons.LessonOwner, service.ErrLessonNotFound)
}

// RequireSlideOwner :slideId 슬라이드가 속한 레슨의 소유자 필수
func (m *LessonMiddleware) RequireSlideOwner() fiber.Handler {
	return m.requireOwner("slideId", "slideID", m.slides.SlideOwner, service.ErrSlideNotFound)
}

// RequireRecordingOwner :recordingId 녹화가 속한 레슨의 소유자 필수
func (m *LessonMiddleware) RequireRecordingOwner() fiber.Handler {
	return m.requireOwner("recordingId", "recordingID", m.recordings.RecordingOwner, service.ErrRecordingNotFound)
}

func (m *LessonMiddleware) requireOwner(param, local string, lookup OwnerLookup, notFound error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.GetClaimsFromContext(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		id, err := paramID(c, param)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		ownerID, err := lookup(c.UserContext(), id)
		if errors.Is(err, notFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": notFound.Error(),
			})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to check ownership",
			})
		}

		// 남의 리소스는 존재 여부도 드러내지 않는다
		if ownerID != claims.UserID {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": notFound.Error(),
			})
		}

		c.Locals(local, id)
		return c.Next()
	}
}
