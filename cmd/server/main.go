package main

import (
	"log"

	"tutorbox-backend/internal/config"
	"tutorbox-backend/internal/database"
	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/server"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	appLog, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		log.Fatalf("❌ Logger init failed: %v", err)
	}
	defer appLog.Sync()

	// 데이터베이스 연결
	db, err := database.ConnectDB()
	if err != nil {
		appLog.Fatal("database connection failed", "error", err)
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		appLog.Fatal("database ping failed", "error", err)
	}
	appLog.Info("database connected")

	// 서버 생성 및 설정
	srv := server.New(cfg, db, appLog)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		appLog.Fatal("server failed to start", "error", err)
	}
}
