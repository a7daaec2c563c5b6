package model

import (
	"time"
)

// User 사용자
type User struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email       string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Nickname    string     `gorm:"type:varchar(100);not null" json:"nickname"`
	ProfileImg  *string    `gorm:"type:text" json:"profile_img,omitempty"`
	Provider    *string    `gorm:"type:varchar(50)" json:"provider,omitempty"`
	ProviderID  *string    `gorm:"type:varchar(255)" json:"provider_id,omitempty"`
	IsPro       bool       `gorm:"default:false" json:"is_pro"`
	ProSince    *time.Time `json:"pro_since,omitempty"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// HasProAccess Pro 구독 또는 유효한 체험 기간 여부
func (u *User) HasProAccess(now time.Time) bool {
	if u.IsPro {
		return true
	}
	return u.TrialEndsAt != nil && now.Before(*u.TrialEndsAt)
}

// Lesson 레슨 (슬라이드 묶음)
type Lesson struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title        string    `gorm:"type:varchar(200);not null" json:"title"`
	UserID       int64     `gorm:"not null;index" json:"user_id"`
	ExportStatus string    `gorm:"type:varchar(20);default:'none'" json:"export_status"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	User   User    `gorm:"foreignKey:UserID" json:"-"`
	Slides []Slide `gorm:"foreignKey:LessonID" json:"slides,omitempty"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// Slide 레슨 내 화이트보드 한 페이지
type Slide struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LessonID   int64     `gorm:"not null;index:idx_slides_lesson_order" json:"lesson_id"`
	OrderIndex int       `gorm:"not null;index:idx_slides_lesson_order" json:"order_index"`
	CanvasData string    `gorm:"type:jsonb;not null;default:'{}'" json:"canvas_data"` // 직렬화된 씬 그래프
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Slide) TableName() string {
	return "slides"
}

// Branding Pro 사용자 브랜딩 설정
type Branding struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64     `gorm:"not null;uniqueIndex" json:"user_id"`
	LogoURL       *string   `gorm:"type:text" json:"logo_url,omitempty"`
	PrimaryColor  string    `gorm:"type:varchar(20);default:'#000000'" json:"primary_color"`
	WatermarkText *string   `gorm:"type:varchar(100)" json:"watermark_text,omitempty"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Branding) TableName() string {
	return "branding"
}

// Recording 레슨 녹화 파일
type Recording struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LessonID   int64     `gorm:"not null;index" json:"lesson_id"`
	UserID     int64     `gorm:"not null" json:"user_id"`
	S3Key      string    `gorm:"type:varchar(500);not null" json:"s3_key"`
	FileURL    string    `gorm:"type:text" json:"file_url"`
	MimeType   string    `gorm:"type:varchar(100)" json:"mime_type"`
	DurationMs int64     `json:"duration_ms"`
	SizeBytes  int64     `json:"size_bytes"`
	Status     string    `gorm:"type:varchar(20);default:'UPLOADED'" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Recording) TableName() string {
	return "recordings"
}

// Subtitle 녹화 자막 (WebVTT)
type Subtitle struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RecordingID int64     `gorm:"not null;index" json:"recording_id"`
	Language    string    `gorm:"type:varchar(10);not null" json:"language"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Subtitle) TableName() string {
	return "subtitles"
}

// Transcript 녹화 전사본
type Transcript struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RecordingID int64     `gorm:"not null;index" json:"recording_id"`
	Language    string    `gorm:"type:varchar(10);not null" json:"language"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Transcript) TableName() string {
	return "transcripts"
}

// PromoCode 프로모션 코드
type PromoCode struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	TrialDays int        `gorm:"default:0" json:"trial_days"`
	GrantsPro bool       `gorm:"default:false" json:"grants_pro"`
	MaxUses   int        `gorm:"default:0" json:"max_uses"` // 0 = 무제한
	UsedCount int        `gorm:"default:0" json:"used_count"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (PromoCode) TableName() string {
	return "promo_codes"
}

// Payment 결제 검증 성공 기록
type Payment struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            int64     `gorm:"not null;index" json:"user_id"`
	RazorpayOrderID   string    `gorm:"type:varchar(100);not null" json:"razorpay_order_id"`
	RazorpayPaymentID string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"razorpay_payment_id"`
	Status            string    `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Payment) TableName() string {
	return "payments"
}
