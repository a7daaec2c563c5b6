package model

import (
	"time"
)

// DrawingStroke 펜 획 로그 (append-only, canvas_data와 별도로 쌓임)
type DrawingStroke struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SlideID    int64     `gorm:"not null;index:idx_drawing_strokes_slide_created" json:"slide_id"`
	UserID     int64     `gorm:"not null" json:"user_id"`
	StrokeData string    `gorm:"type:jsonb;not null" json:"stroke_data"` // 직렬화된 path 오브젝트
	ToolType   string    `gorm:"type:varchar(20);not null" json:"tool_type"`
	Color      string    `gorm:"type:varchar(20);not null" json:"color"`
	Size       float64   `gorm:"not null" json:"size"`
	CreatedAt  time.Time `gorm:"index:idx_drawing_strokes_slide_created" json:"created_at"`
}

func (DrawingStroke) TableName() string {
	return "drawing_strokes"
}
