package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tutorbox-backend/internal/model"
)

// strokeBatchSize 한 번의 INSERT 에 넣을 최대 행 수
const strokeBatchSize = 500

var ErrSlideNotFound = errors.New("slide not found")

// SlideService slides / drawing_strokes 저장소
type SlideService struct {
	db *gorm.DB
}

// NewSlideService SlideService 생성
func NewSlideService(db *gorm.DB) *SlideService {
	return &SlideService{db: db}
}

// ListSlides 레슨의 슬라이드 (order_index 순)
func (s *SlideService) ListSlides(ctx context.Context, lessonID int64) ([]model.Slide, error) {
	var list []model.Slide
	err := s.db.WithContext(ctx).
		Where("lesson_id = ?", lessonID).
		Order("order_index ASC, id ASC").
		Find(&list).Error
	return list, err
}

// GetSlide 슬라이드 조회
func (s *SlideService) GetSlide(ctx context.Context, slideID int64) (*model.Slide, error) {
	var slide model.Slide
	err := s.db.WithContext(ctx).First(&slide, slideID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSlideNotFound
	}
	if err != nil {
		return nil, err
	}
	return &slide, nil
}

// CreateSlide 슬라이드 생성
func (s *SlideService) CreateSlide(ctx context.Context, lessonID int64, orderIndex int, canvasData string) (*model.Slide, error) {
	if canvasData == "" {
		canvasData = model.EmptyCanvas
	}
	slide := model.Slide{
		LessonID:   lessonID,
		OrderIndex: orderIndex,
		CanvasData: canvasData,
	}
	if err := s.db.WithContext(ctx).Create(&slide).Error; err != nil {
		return nil, err
	}
	return &slide, nil
}

// UpdateSlideCanvas canvas_data 덮어쓰기 (last-writer-wins)
func (s *SlideService) UpdateSlideCanvas(ctx context.Context, slideID int64, canvasData string) error {
	result := s.db.WithContext(ctx).Model(&model.Slide{}).Where("id = ?", slideID).Update("canvas_data", canvasData)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSlideNotFound
	}
	return nil
}

// DeleteSlide 슬라이드와 그 획 로그 삭제
func (s *SlideService) DeleteSlide(ctx context.Context, slideID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("slide_id = ?", slideID).Delete(&model.DrawingStroke{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&model.Slide{}, slideID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrSlideNotFound
		}
		return nil
	})
}

// InsertStrokes 획 배치 저장
func (s *SlideService) InsertStrokes(ctx context.Context, strokes []model.DrawingStroke) error {
	if len(strokes) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(&strokes, strokeBatchSize).Error
}

// ListStrokes 슬라이드 획 로그 (created_at 순)
func (s *SlideService) ListStrokes(ctx context.Context, slideID int64) ([]model.DrawingStroke, error) {
	var strokes []model.DrawingStroke
	err := s.db.WithContext(ctx).
		Where("slide_id = ?", slideID).
		Order("created_at ASC, id ASC").
		Find(&strokes).Error
	return strokes, err
}

// DeleteStrokes 슬라이드 획 로그 전체 삭제
func (s *SlideService) DeleteStrokes(ctx context.Context, slideID int64) (int64, error) {
	result := s.db.WithContext(ctx).Where("slide_id = ?", slideID).Delete(&model.DrawingStroke{})
	return result.RowsAffected, result.Error
}

// SlideOwner 슬라이드가 속한 레슨의 소유자
func (s *SlideService) SlideOwner(ctx context.Context, slideID int64) (int64, error) {
	var ownerID int64
	result := s.db.WithContext(ctx).
		Table("slides").
		Joins("JOIN lessons ON lessons.id = slides.lesson_id").
		Where("slides.id = ?", slideID).
		Select("lessons.user_id").
		Scan(&ownerID)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrSlideNotFound
	}
	return ownerID, nil
}
