package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"tutorbox-backend/internal/auth"
	"tutorbox-backend/internal/cache"
	"tutorbox-backend/internal/config"
	"tutorbox-backend/internal/editor"
	"tutorbox-backend/internal/handler"
	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/middleware"
	"tutorbox-backend/internal/payment"
	"tutorbox-backend/internal/service"
	"tutorbox-backend/internal/session"
	"tutorbox-backend/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// Server Fiber 서버 래퍼
type Server struct {
	app *fiber.App
	cfg *config.Config
	db  *gorm.DB
	log *logger.Logger

	hub   *editor.Hub
	redis *cache.RedisClient

	healthHandler    *handler.HealthHandler
	authHandler      *handler.AuthHandler
	accountHandler   *handler.AccountHandler
	lessonHandler    *handler.LessonHandler
	editorHandler    *handler.EditorHandler
	editorWSHandler  *handler.EditorWSHandler
	recordingHandler *handler.RecordingHandler
	lessonMiddleware *middleware.LessonMiddleware
	jwtManager       *auth.JWTManager
}

// New 새 서버 인스턴스 생성. Redis/S3 는 설정이 없으면 비활성화된다.
func New(cfg *config.Config, db *gorm.DB, log *logger.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "TutorBox API",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384, // 16KB - 큰 헤더 허용
		WriteBufferSize:       16384,
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
	})

	// Auth 초기화
	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	googleAuth := auth.NewGoogleAuthenticator(cfg.Auth.GoogleClientID)

	// Redis 초기화 (선택적)
	var redisClient *cache.RedisClient
	if cfg.Redis.Addr != "" {
		var err error
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DraftTTL, log)
		if err != nil {
			log.Warn("redis unavailable, drafts disabled", "addr", cfg.Redis.Addr, "error", err)
			redisClient = nil
		}
	} else {
		log.Info("redis not configured, drafts disabled")
	}

	// S3 서비스 초기화 (선택적)
	var s3Service *storage.S3Service
	if cfg.S3.BucketName != "" {
		var err error
		s3Service, err = storage.NewS3Service(context.Background(), &cfg.S3)
		if err != nil {
			log.Warn("s3 initialization failed, uploads disabled", "error", err)
			s3Service = nil
		} else {
			log.Info("s3 service initialized", "bucket", cfg.S3.BucketName)
		}
	} else {
		log.Info("s3 not configured, uploads disabled")
	}

	lessonService := service.NewLessonService(db)
	slideService := service.NewSlideService(db)
	accountService := service.NewAccountService(db)
	recordingService := service.NewRecordingService(db)
	sessions := session.NewRegistry()

	var drafts editor.Drafts
	if redisClient != nil {
		drafts = redisClient
	}
	hub := editor.NewHub(cfg.Editor, slideService, slideService, drafts, log)

	var pinger handler.Pinger
	if redisClient != nil {
		pinger = redisClient
	}

	return &Server{
		app:   app,
		cfg:   cfg,
		db:    db,
		log:   log,
		hub:   hub,
		redis: redisClient,

		healthHandler:    handler.NewHealthHandler(db, pinger),
		authHandler:      handler.NewAuthHandler(accountService, jwtManager, googleAuth, sessions, cfg.Auth.SecureCookie, log),
		accountHandler:   handler.NewAccountHandler(accountService, payment.NewVerifier(cfg.Payment.RazorpayKeySecret), sessions, log),
		lessonHandler:    handler.NewLessonHandler(lessonService, slideService, log),
		editorHandler:    handler.NewEditorHandler(hub, sessions, accountService, lessonService, s3Service, log),
		editorWSHandler:  handler.NewEditorWSHandler(hub, cfg.WebSocket, log),
		recordingHandler: handler.NewRecordingHandler(recordingService, s3Service, log),
		lessonMiddleware: middleware.NewLessonMiddleware(lessonService, slideService, recordingService),
		jwtManager:       jwtManager,
	}
}

// App 테스트용 Fiber 앱
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Rate Limiter 설정 (인증/결제 엔드포인트용 - Brute Force 방지)
	authLimiter := limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	requireAuth := auth.AuthMiddleware(s.jwtManager)
	lessonOwner := s.lessonMiddleware.RequireLessonOwner()

	// Auth 라우트 그룹
	authGroup := s.app.Group("/auth")
	authGroup.Post("/google", authLimiter, s.authHandler.GoogleLogin)
	authGroup.Post("/refresh", authLimiter, s.authHandler.RefreshToken)
	authGroup.Post("/logout", requireAuth, s.authHandler.Logout)
	authGroup.Get("/me", requireAuth, s.authHandler.GetMe)
	authGroup.Put("/me", requireAuth, s.authHandler.UpdateMe)

	api := s.app.Group("/api", requireAuth)

	// 결제/프로모션/브랜딩
	api.Post("/payments/verify", authLimiter, s.accountHandler.VerifyPayment)
	api.Post("/promo/redeem", authLimiter, s.accountHandler.RedeemPromo)
	api.Get("/branding", s.accountHandler.GetBranding)
	api.Put("/branding", s.accountHandler.UpdateBranding)

	// 레슨
	api.Get("/lessons", s.lessonHandler.ListLessons)
	api.Post("/lessons", s.lessonHandler.CreateLesson)

	lesson := api.Group("/lessons/:lessonId", lessonOwner)
	lesson.Get("", s.lessonHandler.GetLesson)
	lesson.Put("", s.lessonHandler.RenameLesson)
	lesson.Put("/export-status", s.lessonHandler.SetExportStatus)
	lesson.Get("/slides", s.lessonHandler.ListSlides)

	// 획 로그 (슬라이드 소유자)
	slideOwner := s.lessonMiddleware.RequireSlideOwner()
	api.Get("/slides/:slideId/strokes", slideOwner, s.lessonHandler.ListStrokes)
	api.Delete("/slides/:slideId/strokes", slideOwner, s.lessonHandler.DeleteStrokes)

	// 에디터
	ed := lesson.Group("/editor")
	ed.Get("", s.editorHandler.GetState)
	ed.Get("/export", s.editorHandler.Export)
	ed.Post("/open", s.editorHandler.Open)
	ed.Post("/close", s.editorHandler.Close)
	ed.Post("/save", s.editorHandler.Save)
	ed.Post("/flush", s.editorHandler.Flush)
	ed.Post("/undo", s.editorHandler.Undo)
	ed.Post("/redo", s.editorHandler.Redo)
	ed.Post("/tool", s.editorHandler.SetTool)
	ed.Post("/brush", s.editorHandler.SetBrush)
	ed.Post("/shape", s.editorHandler.AddShape)
	ed.Post("/text", s.editorHandler.AddText)
	ed.Post("/path", s.editorHandler.AddPath)
	ed.Put("/objects/:objectId", s.editorHandler.ModifyObject)
	ed.Delete("/objects/:objectId", s.editorHandler.RemoveObject)
	ed.Post("/clear", s.editorHandler.Clear)
	ed.Post("/upload", s.editorHandler.Upload)
	ed.Post("/zoom", s.editorHandler.Zoom)
	ed.Post("/pan", s.editorHandler.Pan)
	ed.Post("/reset-zoom", s.editorHandler.ResetZoom)
	ed.Post("/autosave", s.editorHandler.SetAutoSave)
	ed.Post("/flags", s.editorHandler.SetFlags)
	ed.Post("/slides", s.editorHandler.AddSlide)
	ed.Post("/slides/:index/select", s.editorHandler.SelectSlide)
	ed.Post("/slides/:slideId/duplicate", s.editorHandler.DuplicateSlide)
	ed.Delete("/slides/:slideId", s.editorHandler.DeleteSlide)

	// 녹화
	lesson.Post("/recordings/presign", s.recordingHandler.GetPresignedURL)
	lesson.Post("/recordings/confirm", s.recordingHandler.ConfirmUpload)
	lesson.Get("/recordings", s.recordingHandler.ListRecordings)

	recording := api.Group("/recordings/:recordingId", s.lessonMiddleware.RequireRecordingOwner())
	recording.Get("/download", s.recordingHandler.GetDownloadURL)
	recording.Get("/subtitles", s.recordingHandler.ListSubtitles)
	recording.Post("/subtitles", s.recordingHandler.AddSubtitle)
	recording.Get("/transcripts", s.recordingHandler.ListTranscripts)
	recording.Post("/transcripts", s.recordingHandler.AddTranscript)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 에디터 이벤트 스트림 (토큰은 쿠키 또는 ?token=)
	s.app.Get("/ws/editor/:lessonId", requireAuth, lessonOwner,
		websocket.New(s.editorWSHandler.HandleWebSocket, websocket.Config{
			ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
		}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 유휴 에디터 정리
	go s.hub.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.log.Info("shutting down server")
		if err := s.Shutdown(); err != nil {
			s.log.Error("server shutdown error", "error", err)
		}
	}()

	s.log.Info("TutorBox API starting", "port", s.cfg.Server.Port)
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 열린 에디터의 획을 저장한 뒤 서버 종료
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.hub.CloseAll(ctx)
	if err := s.redis.Close(); err != nil {
		s.log.Warn("redis close failed", "error", err)
	}
	return s.app.ShutdownWithTimeout(shutdownTimeout)
}
