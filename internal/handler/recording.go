package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/model"
	"tutorbox-backend/internal/service"
	"tutorbox-backend/internal/storage"
)

// RecordingHandler 레슨 녹화/자막/전사 핸들러
type RecordingHandler struct {
	recordings *service.RecordingService
	s3         *storage.S3Service
	log        *logger.Logger
}

// NewRecordingHandler RecordingHandler 생성. s3 가 nil 이면 업로드 관련 API 는 503.
func NewRecordingHandler(recordings *service.RecordingService, s3 *storage.S3Service, log *logger.Logger) *RecordingHandler {
	return &RecordingHandler{recordings: recordings, s3: s3, log: log}
}

// PresignRecordingRequest 업로드 URL 요청
type PresignRecordingRequest struct {
	FileName    string `json:"file_name" validate:"required,notblank,max=255"`
	ContentType string `json:"content_type" validate:"required,startswith=video/|startswith=audio/"`
}

// ConfirmRecordingRequest 업로드 완료 알림
type ConfirmRecordingRequest struct {
	Key        string `json:"key" validate:"required"`
	MimeType   string `json:"mime_type" validate:"required"`
	DurationMs int64  `json:"duration_ms" validate:"gte=0"`
	SizeBytes  int64  `json:"size_bytes" validate:"gte=0"`
}

// SubtitleRequest 자막 추가 요청
type SubtitleRequest struct {
	Language string `json:"language" validate:"required,min=2,max=10"`
	Content  string `json:"content" validate:"required,startswith=WEBVTT"`
}

// TranscriptRequest 전사본 추가 요청
type TranscriptRequest struct {
	Language string `json:"language" validate:"required,min=2,max=10"`
	Text     string `json:"text" validate:"required,notblank"`
}

func (h *RecordingHandler) s3Unavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "S3 service is not configured",
	})
}

// GetPresignedURL 녹화 업로드용 presigned URL 발급
func (h *RecordingHandler) GetPresignedURL(c *fiber.Ctx) error {
	if h.s3 == nil {
		return h.s3Unavailable(c)
	}
	lessonID, err := localID(c, "lessonID", "lessonId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req PresignRecordingRequest
	if ok, err := parseAndValidate(c, &req); !ok {
		return err
	}

	presigned, err := h.s3.GenerateUploadURL(c.UserContext(), storage.PrefixRecordings, lessonID, req.FileName, req.ContentType)
	if err != nil {
		h.log.Error("presign failed", "lesson_id", lessonID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate presigned URL",
		})
	}

	return c.JSON(fiber.Map{
		"upload_url": presigned.URL,
		"key":        presigned.Key,
		"expires_at": presigned.ExpiresAt,
	})
}

// ConfirmUpload 업로드된 녹화 등록
func (h *RecordingHandler) ConfirmUpload(c *fiber.Ctx) error {
	if h.s3 == nil {
		return h.s3Unavailable(c)
	}
	userID, err := currentUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	lessonID, err := localID(c, "lessonID", "lessonId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req ConfirmRecordingRequest
	if ok, err := parseAndValidate(c, &req); !ok {
		return err
	}

	// 다른 레슨 경로의 키는 받지 않는다
	if !storage.KeyBelongsTo(req.Key, storage.PrefixRecordings, lessonID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "key does not belong to this lesson",
		})
	}

	rec := &model.Recording{
		LessonID:   lessonID,
		UserID:     userID,
		S3Key:      req.Key,
		FileURL:    h.s3.GetPublicURL(req.Key),
		MimeType:   strings.ToLower(req.MimeType),
		DurationMs: req.DurationMs,
		SizeBytes:  req.SizeBytes,
	}
	if err := h.recordings.CreateRecording(c.UserContext(), rec); err != nil {
		h.log.Error("recording save failed", "lesson_id", lessonID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save recording",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// ListRecordings 레슨 녹화 목록
func (h *RecordingHandler) ListRecordings(c *fiber.Ctx) error {
	lessonID, err := localID(c, "lessonID", "lessonId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	list, err := h.recordings.ListRecordings(c.UserContext(), lessonID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list recordings",
		})
	}
	return c.JSON(fiber.Map{
		"recordings": list,
		"total":      len(list),
	})
}

// GetDownloadURL 녹화 다운로드 URL
func (h *RecordingHandler) GetDownloadURL(c *fiber.Ctx) error {
	if h.s3 == nil {
		return h.s3Unavailable(c)
	}
	recordingID, err := localID(c, "recordingID", "recordingId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	rec, err := h.recordings.GetRecording(c.UserContext(), recordingID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "recording not found"})
	}

	url, err := h.s3.GetFileURL(c.UserContext(), rec.S3Key)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate download URL",
		})
	}
	return c.JSON(fiber.Map{"download_url": url})
}

// ListSubtitles 녹화 자막 목록
func (h *RecordingHandler) ListSubtitles(c *fiber.Ctx) error {
	recordingID, err := localID(c, "recordingID", "recordingId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	list, err := h.recordings.ListSubtitles(c.UserContext(), recordingID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list subtitles",
		})
	}
	return c.JSON(fiber.Map{"subtitles": list})
}

// AddSubtitle 자막 추가 (녹화 상태 READY)
func (h *RecordingHandler) AddSubtitle(c *fiber.Ctx) error {
	recordingID, err := localID(c, "recordingID", "recordingId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req SubtitleRequest
	if ok, err := parseAndValidate(c, &req); !ok {
		return err
	}

	sub := &model.Subtitle{
		RecordingID: recordingID,
		Language:    strings.ToLower(req.Language),
		Content:     req.Content,
	}
	if err := h.recordings.AddSubtitle(c.UserContext(), sub); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save subtitle",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// ListTranscripts 녹화 전사본 목록
func (h *RecordingHandler) ListTranscripts(c *fiber.Ctx) error {
	recordingID, err := localID(c, "recordingID", "recordingId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	list, err := h.recordings.ListTranscripts(c.UserContext(), recordingID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list transcripts",
		})
	}
	return c.JSON(fiber.Map{"transcripts": list})
}

// AddTranscript 전사본 추가
func (h *RecordingHandler) AddTranscript(c *fiber.Ctx) error {
	recordingID, err := localID(c, "recordingID", "recordingId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req TranscriptRequest
	if ok, err := parseAndValidate(c, &req); !ok {
		return err
	}

	tr := &model.Transcript{
		RecordingID: recordingID,
		Language:    strings.ToLower(req.Language),
		Text:        req.Text,
	}
	if err := h.recordings.AddTranscript(c.UserContext(), tr); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save transcript",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(tr)
}
