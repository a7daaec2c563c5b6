package model

// ExportStatus 레슨 내보내기 상태
type ExportStatus string

const (
	ExportStatusNone       ExportStatus = "none"
	ExportStatusPending    ExportStatus = "pending"
	ExportStatusProcessing ExportStatus = "processing"
	ExportStatusCompleted  ExportStatus = "completed"
	ExportStatusFailed     ExportStatus = "failed"
)

// String 메서드
func (s ExportStatus) String() string {
	return string(s)
}

// Valid 허용된 상태값인지 확인
func (s ExportStatus) Valid() bool {
	switch s {
	case ExportStatusNone, ExportStatusPending, ExportStatusProcessing, ExportStatusCompleted, ExportStatusFailed:
		return true
	}
	return false
}

// RecordingStatus 녹화 업로드 상태
type RecordingStatus string

const (
	RecordingStatusUploaded RecordingStatus = "UPLOADED"
	RecordingStatusReady    RecordingStatus = "READY"
)

func (s RecordingStatus) String() string {
	return string(s)
}

// PaymentStatus 결제 상태
type PaymentStatus string

const (
	PaymentStatusVerified PaymentStatus = "VERIFIED"
)

func (s PaymentStatus) String() string {
	return string(s)
}

// EmptyCanvas 새 슬라이드의 초기 canvas_data
const EmptyCanvas = "{}"
