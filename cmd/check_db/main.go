package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"tutorbox-backend/internal/database"
)

// 레슨/슬라이드 데이터 점검 도구
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	fmt.Println("✅ Connected to database")
	fmt.Println()

	// 테이블별 행 수
	tables := []string{"users", "lessons", "slides", "drawing_strokes", "branding", "recordings", "subtitles", "transcripts", "promo_codes", "payments"}
	fmt.Println("📊 Row counts:")
	for _, table := range tables {
		var count int64
		if err := db.Table(table).Count(&count).Error; err != nil {
			fmt.Printf("  - %s: error (%v)\n", table, err)
			continue
		}
		fmt.Printf("  - %s: %d\n", table, count)
	}
	fmt.Println()

	// 슬라이드가 하나도 없는 레슨 (생성 시 첫 슬라이드가 있어야 함)
	type LessonInfo struct {
		ID     int64
		UserID int64
		Title  string
	}
	var orphans []LessonInfo
	query := `
		SELECT l.id, l.user_id, l.title
		FROM lessons l
		LEFT JOIN slides s ON s.lesson_id = l.id
		WHERE s.id IS NULL
		ORDER BY l.id
	`
	if err := db.Raw(query).Scan(&orphans).Error; err != nil {
		log.Fatal("Failed to check lessons:", err)
	}
	if len(orphans) == 0 {
		fmt.Println("✅ Every lesson has at least one slide")
	} else {
		fmt.Printf("⚠️  %d lesson(s) without slides:\n", len(orphans))
		for _, l := range orphans {
			fmt.Printf("  - ID: %d, User: %d, Title: %s\n", l.ID, l.UserID, l.Title)
		}
	}
	fmt.Println()

	// 존재하지 않는 슬라이드를 가리키는 획
	var danglingStrokes int64
	query = `
		SELECT COUNT(*)
		FROM drawing_strokes d
		LEFT JOIN slides s ON s.id = d.slide_id
		WHERE s.id IS NULL
	`
	if err := db.Raw(query).Scan(&danglingStrokes).Error; err != nil {
		log.Fatal("Failed to check strokes:", err)
	}
	fmt.Printf("📈 Strokes without a slide: %d\n", danglingStrokes)

	// 사용량 한도를 넘긴 프로모션 코드
	var overused int64
	query = `SELECT COUNT(*) FROM promo_codes WHERE max_uses > 0 AND used_count > max_uses`
	if err := db.Raw(query).Scan(&overused).Error; err != nil {
		log.Fatal("Failed to check promo codes:", err)
	}
	fmt.Printf("🎟️  Promo codes over their usage limit: %d\n", overused)
}
