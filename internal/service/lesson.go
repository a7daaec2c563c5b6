package service

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"tutorbox-backend/internal/model"
)

var (
	ErrLessonNotFound      = errors.New("lesson not found")
	ErrInvalidExportStatus = errors.New("invalid export status")
)

// DefaultLessonTitle 제목 없이 만든 레슨
const DefaultLessonTitle = "Untitled lesson"

// LessonService 레슨 관련 비즈니스 로직
type LessonService struct {
	db *gorm.DB
}

// NewLessonService LessonService 생성
func NewLessonService(db *gorm.DB) *LessonService {
	return &LessonService{db: db}
}

// CreateLesson 레슨과 첫 슬라이드(order_index=0, canvas_data={})를 한 트랜잭션으로 생성
func (s *LessonService) CreateLesson(ctx context.Context, userID int64, title string) (*model.Lesson, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultLessonTitle
	}

	var lesson model.Lesson
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lesson = model.Lesson{
			Title:        title,
			UserID:       userID,
			ExportStatus: model.ExportStatusNone.String(),
		}
		if err := tx.Create(&lesson).Error; err != nil {
			return err
		}

		first := model.Slide{
			LessonID:   lesson.ID,
			OrderIndex: 0,
			CanvasData: model.EmptyCanvas,
		}
		if err := tx.Create(&first).Error; err != nil {
			return err
		}
		lesson.Slides = []model.Slide{first}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ListLessons 내 레슨 목록 (최근 수정 순)
func (s *LessonService) ListLessons(ctx context.Context, userID int64) ([]model.Lesson, error) {
	var lessons []model.Lesson
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&lessons).Error
	return lessons, err
}

// GetLesson 레슨 조회 (슬라이드 포함)
func (s *LessonService) GetLesson(ctx context.Context, lessonID int64) (*model.Lesson, error) {
	var lesson model.Lesson
	err := s.db.WithContext(ctx).
		Preload("Slides", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC, id ASC")
		}).
		First(&lesson, lessonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLessonNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

// LessonOwner 레슨 소유자 ID
func (s *LessonService) LessonOwner(ctx context.Context, lessonID int64) (int64, error) {
	var ownerID int64
	result := s.db.WithContext(ctx).Model(&model.Lesson{}).Where("id = ?", lessonID).Select("user_id").Scan(&ownerID)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrLessonNotFound
	}
	return ownerID, nil
}

// IsLessonOwner 레슨 소유자 여부 확인
func (s *LessonService) IsLessonOwner(ctx context.Context, lessonID, userID int64) (bool, error) {
	ownerID, err := s.LessonOwner(ctx, lessonID)
	if err != nil {
		return false, err
	}
	return ownerID == userID, nil
}

// RenameLesson 제목 변경
func (s *LessonService) RenameLesson(ctx context.Context, lessonID int64, title string) (*model.Lesson, error) {
	result := s.db.WithContext(ctx).Model(&model.Lesson{}).Where("id = ?", lessonID).Update("title", strings.TrimSpace(title))
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrLessonNotFound
	}
	return s.GetLesson(ctx, lessonID)
}

// SetExportStatus 내보내기 상태 변경
func (s *LessonService) SetExportStatus(ctx context.Context, lessonID int64, status model.ExportStatus) error {
	if !status.Valid() {
		return ErrInvalidExportStatus
	}
	result := s.db.WithContext(ctx).Model(&model.Lesson{}).Where("id = ?", lessonID).Update("export_status", status.String())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLessonNotFound
	}
	return nil
}
