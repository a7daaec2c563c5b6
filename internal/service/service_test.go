package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tutorbox-backend/internal/database"
	"tutorbox-backend/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Nickname: "tester"}
	require.NoError(t, db.Create(u).Error)
	return u
}

func TestCreateLesson_CreatesFirstSlide(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "a@example.com")
	svc := NewLessonService(db)
	ctx := context.Background()

	lesson, err := svc.CreateLesson(ctx, user.ID, "  ")
	require.NoError(t, err)
	assert.Equal(t, DefaultLessonTitle, lesson.Title)
	assert.Equal(t, "none", lesson.ExportStatus)

	var slides []model.Slide
	require.NoError(t, db.Where("lesson_id = ?", lesson.ID).Find(&slides).Error)
	require.Len(t, slides, 1)
	assert.Equal(t, 0, slides[0].OrderIndex)
	assert.Equal(t, "{}", slides[0].CanvasData)
}

func TestLessonOwnershipAndUpdates(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "o@example.com")
	svc := NewLessonService(db)
	ctx := context.Background()

	lesson, err := svc.CreateLesson(ctx, owner.ID, "Algebra")
	require.NoError(t, err)

	ok, err := svc.IsLessonOwner(ctx, lesson.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsLessonOwner(ctx, lesson.ID, owner.ID+1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.IsLessonOwner(ctx, 999, owner.ID)
	assert.ErrorIs(t, err, ErrLessonNotFound)

	renamed, err := svc.RenameLesson(ctx, lesson.ID, "Geometry")
	require.NoError(t, err)
	assert.Equal(t, "Geometry", renamed.Title)
	assert.Len(t, renamed.Slides, 1)

	require.NoError(t, svc.SetExportStatus(ctx, lesson.ID, model.ExportStatusPending))
	assert.ErrorIs(t, svc.SetExportStatus(ctx, lesson.ID, "shipped"), ErrInvalidExportStatus)

	list, err := svc.ListLessons(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pending", list[0].ExportStatus)
}

func TestSlideService_StrokesAndDelete(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "s@example.com")
	lesson, err := NewLessonService(db).CreateLesson(context.Background(), user.ID, "L")
	require.NoError(t, err)

	svc := NewSlideService(db)
	ctx := context.Background()
	slideID := lesson.Slides[0].ID

	base := time.Now()
	rows := make([]model.DrawingStroke, 3)
	for i := range rows {
		rows[i] = model.DrawingStroke{
			SlideID: slideID, UserID: user.ID, StrokeData: `{"type":"path"}`,
			ToolType: "pen", Color: "#000000", Size: 3, CreatedAt: base.Add(time.Duration(2-i) * time.Second),
		}
	}
	require.NoError(t, svc.InsertStrokes(ctx, rows))

	got, err := svc.ListStrokes(ctx, slideID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].CreatedAt.Before(got[2].CreatedAt))

	owner, err := svc.SlideOwner(ctx, slideID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner)

	require.NoError(t, svc.UpdateSlideCanvas(ctx, slideID, `{"objects":[]}`))
	assert.ErrorIs(t, svc.UpdateSlideCanvas(ctx, 999, `{}`), ErrSlideNotFound)

	second, err := svc.CreateSlide(ctx, lesson.ID, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "{}", second.CanvasData)

	require.NoError(t, svc.DeleteSlide(ctx, slideID))
	got, _ = svc.ListStrokes(ctx, slideID)
	assert.Empty(t, got)

	list, err := svc.ListSlides(ctx, lesson.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].OrderIndex)
}

func TestUpgradeToPro_IsIdempotentPerPayment(t *testing.T) {
	db := newTestDB(t)
	a := createUser(t, db, "a@example.com")
	b := createUser(t, db, "b@example.com")
	svc := NewAccountService(db)
	ctx := context.Background()

	user, err := svc.UpgradeToPro(ctx, a.ID, "order_1", "pay_1")
	require.NoError(t, err)
	assert.True(t, user.IsPro)
	assert.NotNil(t, user.ProSince)

	_, err = svc.UpgradeToPro(ctx, a.ID, "order_1", "pay_1")
	require.NoError(t, err)

	_, err = svc.UpgradeToPro(ctx, b.ID, "order_1", "pay_1")
	assert.ErrorIs(t, err, ErrPaymentAlreadyUsed)

	var count int64
	db.Model(&model.Payment{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRedeemPromo(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "p@example.com")
	other := createUser(t, db, "q@example.com")
	svc := NewAccountService(db)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	past := now.Add(-time.Hour)

	require.NoError(t, db.Create(&model.PromoCode{Code: "TRIAL14", TrialDays: 14, MaxUses: 1}).Error)
	require.NoError(t, db.Create(&model.PromoCode{Code: "OLD", TrialDays: 7, ExpiresAt: &past}).Error)
	require.NoError(t, db.Create(&model.PromoCode{Code: "PROFREE", GrantsPro: true}).Error)

	u, err := svc.RedeemPromo(ctx, user.ID, " trial14 ")
	require.NoError(t, err)
	require.NotNil(t, u.TrialEndsAt)
	assert.True(t, u.TrialEndsAt.Equal(now.AddDate(0, 0, 14)))
	assert.True(t, u.HasProAccess(now))

	_, err = svc.RedeemPromo(ctx, other.ID, "TRIAL14")
	assert.ErrorIs(t, err, ErrPromoExhausted)

	_, err = svc.RedeemPromo(ctx, user.ID, "OLD")
	assert.ErrorIs(t, err, ErrPromoExpired)

	_, err = svc.RedeemPromo(ctx, user.ID, "NOPE")
	assert.ErrorIs(t, err, ErrPromoNotFound)

	u, err = svc.RedeemPromo(ctx, other.ID, "PROFREE")
	require.NoError(t, err)
	assert.True(t, u.IsPro)
}

func TestBrandingUpsert(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "b@example.com")
	svc := NewAccountService(db)
	ctx := context.Background()

	_, err := svc.GetBranding(ctx, user.ID)
	assert.ErrorIs(t, err, ErrBrandingNotFound)
	assert.Equal(t, "", svc.WatermarkFor(ctx, user.ID))

	mark := "Ms. Rivera"
	_, err = svc.UpsertBranding(ctx, &model.Branding{UserID: user.ID, PrimaryColor: "#112233", WatermarkText: &mark})
	require.NoError(t, err)

	mark2 := "Rivera Tutoring"
	b, err := svc.UpsertBranding(ctx, &model.Branding{UserID: user.ID, PrimaryColor: "#445566", WatermarkText: &mark2})
	require.NoError(t, err)
	assert.Equal(t, "#445566", b.PrimaryColor)
	assert.Equal(t, "Rivera Tutoring", svc.WatermarkFor(ctx, user.ID))

	var count int64
	db.Model(&model.Branding{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRecordings(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "r@example.com")
	lesson, _ := NewLessonService(db).CreateLesson(context.Background(), user.ID, "L")
	svc := NewRecordingService(db)
	ctx := context.Background()

	rec := &model.Recording{LessonID: lesson.ID, UserID: user.ID, S3Key: "recordings/1/a.webm", MimeType: "video/webm"}
	require.NoError(t, svc.CreateRecording(ctx, rec))
	assert.Equal(t, "UPLOADED", rec.Status)

	owner, err := svc.RecordingOwner(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner)

	require.NoError(t, svc.AddSubtitle(ctx, &model.Subtitle{RecordingID: rec.ID, Language: "en", Content: "WEBVTT\n"}))
	got, err := svc.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "READY", got.Status)

	require.NoError(t, svc.AddTranscript(ctx, &model.Transcript{RecordingID: rec.ID, Language: "en", Text: "hello"}))
	trs, err := svc.ListTranscripts(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, trs, 1)

	list, err := svc.ListRecordings(ctx, lesson.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.RecordingOwner(ctx, 999)
	assert.ErrorIs(t, err, ErrRecordingNotFound)
}
