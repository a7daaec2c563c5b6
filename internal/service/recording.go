package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tutorbox-backend/internal/model"
)

var ErrRecordingNotFound = errors.New("recording not found")

// RecordingService 녹화/자막/전사 저장소
type RecordingService struct {
	db *gorm.DB
}

// NewRecordingService RecordingService 생성
func NewRecordingService(db *gorm.DB) *RecordingService {
	return &RecordingService{db: db}
}

// CreateRecording 업로드 완료된 녹화 등록
func (s *RecordingService) CreateRecording(ctx context.Context, rec *model.Recording) error {
	if rec.Status == "" {
		rec.Status = model.RecordingStatusUploaded.String()
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// ListRecordings 레슨 녹화 목록 (최신순)
func (s *RecordingService) ListRecordings(ctx context.Context, lessonID int64) ([]model.Recording, error) {
	var list []model.Recording
	err := s.db.WithContext(ctx).
		Where("lesson_id = ?", lessonID).
		Order("created_at DESC, id DESC").
		Find(&list).Error
	return list, err
}

// GetRecording 녹화 조회
func (s *RecordingService) GetRecording(ctx context.Context, recordingID int64) (*model.Recording, error) {
	var rec model.Recording
	err := s.db.WithContext(ctx).First(&rec, recordingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AddSubtitle 자막 추가. 녹화 상태를 READY 로 바꾼다.
func (s *RecordingService) AddSubtitle(ctx context.Context, sub *model.Subtitle) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		return tx.Model(&model.Recording{}).
			Where("id = ?", sub.RecordingID).
			Update("status", model.RecordingStatusReady.String()).Error
	})
}

// ListSubtitles 녹화 자막 목록
func (s *RecordingService) ListSubtitles(ctx context.Context, recordingID int64) ([]model.Subtitle, error) {
	var list []model.Subtitle
	err := s.db.WithContext(ctx).Where("recording_id = ?", recordingID).Order("id ASC").Find(&list).Error
	return list, err
}

// AddTranscript 전사본 추가
func (s *RecordingService) AddTranscript(ctx context.Context, tr *model.Transcript) error {
	return s.db.WithContext(ctx).Create(tr).Error
}

// ListTranscripts 녹화 전사본 목록
func (s *RecordingService) ListTranscripts(ctx context.Context, recordingID int64) ([]model.Transcript, error) {
	var list []model.Transcript
	err := s.db.WithContext(ctx).Where("recording_id = ?", recordingID).Order("id ASC").Find(&list).Error
	return list, err
}

// RecordingOwner 녹화가 속한 레슨의 소유자
func (s *RecordingService) RecordingOwner(ctx context.Context, recordingID int64) (int64, error) {
	var ownerID int64
	result := s.db.WithContext(ctx).
		Table("recordings").
		Joins("JOIN lessons ON lessons.id = recordings.lesson_id").
		Where("recordings.id = ?", recordingID).
		Select("lessons.user_id").
		Scan(&ownerID)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrRecordingNotFound
	}
	return ownerID, nil
}
