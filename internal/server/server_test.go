package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tutorbox-backend/internal/auth"
	"tutorbox-backend/internal/config"
	"tutorbox-backend/internal/database"
	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/model"
	"tutorbox-backend/internal/payment"
)

const (
	jwtSecret     = "server-test-secret"
	paymentSecret = "server-test-payment"
)

type harness struct {
	srv *Server
	db  *gorm.DB
	jwt *auth.JWTManager
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: ":0"},
		WebSocket: config.WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			WriteTimeout:    time.Second,
			PingInterval:    time.Minute,
		},
		CORS: config.CORSConfig{
			AllowOrigins: "http://localhost:3000",
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		},
		Auth: config.AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  time.Hour,
			RefreshTokenExpiry: 24 * time.Hour,
		},
		Payment: config.PaymentConfig{RazorpayKeySecret: paymentSecret},
		Editor: config.EditorConfig{
			StrokeDebounce:  time.Hour,
			HistoryCapacity: 50,
			MaxUploadBytes:  5 << 20,
			AutoSave:        true,
			IdleTimeout:     time.Hour,
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	cfg := testConfig()
	srv := New(cfg, db, logger.NewNop())
	srv.SetupRoutes()

	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = sqlDB.Close()
	})
	return &harness{srv: srv, db: db, jwt: auth.NewJWTManager(jwtSecret, time.Hour, 24*time.Hour)}
}

func (h *harness) user(t *testing.T, email string) (*model.User, string) {
	t.Helper()
	u := &model.User{Email: email, Nickname: "tutor"}
	require.NoError(t, h.db.Create(u).Error)
	token, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.Nickname)
	require.NoError(t, err)
	return u, token
}

func (h *harness) raw(t *testing.T, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.srv.App().Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (h *harness) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	resp, data := h.raw(t, method, path, token, body)
	out := map[string]interface{}{}
	_ = json.Unmarshal(data, &out)
	return resp.StatusCode, out
}

func (h *harness) lesson(t *testing.T, token string) (int64, int64) {
	t.Helper()
	status, body := h.do(t, http.MethodPost, "/api/lessons", token, map[string]string{"title": "Algebra"})
	require.Equal(t, http.StatusCreated, status)
	slides := body["slides"].([]interface{})
	slide := slides[0].(map[string]interface{})
	return int64(body["id"].(float64)), int64(slide["id"].(float64))
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	checks, ok := body["checks"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, checks, "database")
	assert.Contains(t, checks, "redis")

	status, _ = h.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestCreateLesson_HasOneEmptySlide(t *testing.T) {
	h := newHarness(t)
	_, token := h.user(t, "a@example.com")

	lessonID, slideID := h.lesson(t, token)

	var slides []model.Slide
	require.NoError(t, h.db.Where("lesson_id = ?", lessonID).Find(&slides).Error)
	require.Len(t, slides, 1)
	assert.Equal(t, slideID, slides[0].ID)
	assert.Equal(t, 0, slides[0].OrderIndex)
	assert.Equal(t, model.EmptyCanvas, slides[0].CanvasData)
}

func TestLessonOwnership(t *testing.T) {
	h := newHarness(t)
	_, ownerToken := h.user(t, "owner@example.com")
	_, otherToken := h.user(t, "other@example.com")
	lessonID, slideID := h.lesson(t, ownerToken)

	status, _ := h.do(t, http.MethodGet, fmt.Sprintf("/api/lessons/%d", lessonID), otherToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = h.do(t, http.MethodPost, fmt.Sprintf("/api/lessons/%d/editor/open", lessonID), otherToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = h.do(t, http.MethodGet, fmt.Sprintf("/api/slides/%d/strokes", slideID), otherToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.do(t, http.MethodGet, fmt.Sprintf("/api/lessons/%d", lessonID), ownerToken, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = h.do(t, http.MethodGet, "/api/lessons/999", ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = h.do(t, http.MethodGet, fmt.Sprintf("/api/lessons/%d", lessonID), "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRenameLesson_BlankTitle(t *testing.T) {
	h := newHarness(t)
	_, token := h.user(t, "r@example.com")
	lessonID, _ := h.lesson(t, token)

	status, body := h.do(t, http.MethodPut, fmt.Sprintf("/api/lessons/%d", lessonID), token, map[string]string{"title": " "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["fields"], "title")
}

func TestPaymentVerification(t *testing.T) {
	h := newHarness(t)
	u, token := h.user(t, "p@example.com")

	status, _ := h.do(t, http.MethodPost, "/api/payments/verify", token, map[string]string{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "0000",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	var user model.User
	require.NoError(t, h.db.First(&user, u.ID).Error)
	assert.False(t, user.IsPro)
	var count int64
	h.db.Model(&model.Payment{}).Count(&count)
	assert.Zero(t, count)

	sig := payment.NewVerifier(paymentSecret).Sign("order_1", "pay_1")
	status, _ = h.do(t, http.MethodPost, "/api/payments/verify", token, map[string]string{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  sig,
	})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, h.db.First(&user, u.ID).Error)
	assert.True(t, user.IsPro)

	// 다른 사용자가 같은 결제를 재사용
	_, otherToken := h.user(t, "q@example.com")
	status, _ = h.do(t, http.MethodPost, "/api/payments/verify", otherToken, map[string]string{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  sig,
	})
	assert.Equal(t, http.StatusConflict, status)
}

func TestBranding_ProOnly(t *testing.T) {
	h := newHarness(t)
	u, token := h.user(t, "b@example.com")

	status, _ := h.do(t, http.MethodGet, "/api/branding", token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	require.NoError(t, h.db.Model(&model.User{}).Where("id = ?", u.ID).Update("is_pro", true).Error)
	status, body := h.do(t, http.MethodGet, "/api/branding", token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["primary_color"])
}

func TestEditor_RequiresOpen(t *testing.T) {
	h := newHarness(t)
	_, token := h.user(t, "e@example.com")
	lessonID, _ := h.lesson(t, token)

	status, _ := h.do(t, http.MethodPost, fmt.Sprintf("/api/lessons/%d/editor/shape", lessonID), token, map[string]string{"shape": "rect"})
	assert.Equal(t, http.StatusConflict, status)
}

func TestEditor_DrawFlushUndoExport(t *testing.T) {
	h := newHarness(t)
	_, token := h.user(t, "draw@example.com")
	lessonID, slideID := h.lesson(t, token)
	base := fmt.Sprintf("/api/lessons/%d/editor", lessonID)

	status, state := h.do(t, http.MethodPost, base+"/open", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pen", state["tool"])

	status, body := h.do(t, http.MethodPost, base+"/shape", token, map[string]string{"shape": "rect"})
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["id"])

	status, _ = h.do(t, http.MethodPost, base+"/shape", token, map[string]string{"shape": "hexagon"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodPost, base+"/tool", token, map[string]string{"tool": "pen"})
	require.Equal(t, http.StatusOK, status)
	status, _ = h.do(t, http.MethodPost, base+"/path", token, map[string]interface{}{
		"points": []map[string]float64{{"x": 10, "y": 10}, {"x": 40, "y": 60}},
	})
	require.Equal(t, http.StatusCreated, status)

	status, body = h.do(t, http.MethodPost, base+"/flush", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["pending"])

	status, body = h.do(t, http.MethodGet, fmt.Sprintf("/api/slides/%d/strokes", slideID), token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])

	status, body = h.do(t, http.MethodPost, base+"/undo", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["applied"])

	resp, data := h.raw(t, http.MethodGet, base+"/export?format=png", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	status, _ = h.do(t, http.MethodGet, base+"/export?format=bmp", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodGet, base+"/export?format=png&upload=true", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = h.do(t, http.MethodPost, base+"/close", token, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = h.do(t, http.MethodGet, base, token, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestRecordings_WithoutStorage(t *testing.T) {
	h := newHarness(t)
	_, token := h.user(t, "rec@example.com")
	lessonID, _ := h.lesson(t, token)

	status, _ := h.do(t, http.MethodPost, fmt.Sprintf("/api/lessons/%d/recordings/presign", lessonID), token, map[string]string{
		"file_name":    "class.webm",
		"content_type": "video/webm",
	})
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, body := h.do(t, http.MethodGet, fmt.Sprintf("/api/lessons/%d/recordings", lessonID), token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["total"])
}

func TestRecordingSubtitles(t *testing.T) {
	h := newHarness(t)
	u, token := h.user(t, "sub@example.com")
	_, otherToken := h.user(t, "stranger@example.com")
	lessonID, _ := h.lesson(t, token)

	rec := &model.Recording{LessonID: lessonID, UserID: u.ID, S3Key: fmt.Sprintf("recordings/%d/a.webm", lessonID)}
	require.NoError(t, h.db.Create(rec).Error)
	base := fmt.Sprintf("/api/recordings/%d", rec.ID)

	status, _ := h.do(t, http.MethodPost, base+"/subtitles", token, map[string]string{
		"language": "en",
		"content":  "not a vtt file",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodPost, base+"/subtitles", token, map[string]string{
		"language": "EN",
		"content":  "WEBVTT\n\n00:00.000 --> 00:01.000\nHello",
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := h.do(t, http.MethodGet, base+"/subtitles", token, nil)
	require.Equal(t, http.StatusOK, status)
	subs := body["subtitles"].([]interface{})
	require.Len(t, subs, 1)
	assert.Equal(t, "en", subs[0].(map[string]interface{})["language"])

	status, _ = h.do(t, http.MethodGet, base+"/subtitles", otherToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
