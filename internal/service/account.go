package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tutorbox-backend/internal/model"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrPaymentAlreadyUsed = errors.New("payment already applied to another account")
	ErrPromoNotFound      = errors.New("promo code not found")
	ErrPromoExpired       = errors.New("promo code expired")
	ErrPromoExhausted     = errors.New("promo code has reached its usage limit")
	ErrBrandingNotFound   = errors.New("branding not found")
)

// AccountService 사용자 구독/프로모션/브랜딩 비즈니스 로직
type AccountService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAccountService AccountService 생성
func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{db: db, now: time.Now}
}

// GetUser 사용자 조회
func (s *AccountService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// LoginWithGoogle 이메일로 사용자 조회, 없으면 생성. 기존 사용자는 프로필 이미지와 provider 갱신.
func (s *AccountService) LoginWithGoogle(ctx context.Context, email, name, picture, providerID string) (*model.User, error) {
	provider := "google"
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if strings.TrimSpace(name) == "" {
			name = strings.SplitN(email, "@", 2)[0]
		}
		user = model.User{
			Email:      email,
			Nickname:   name,
			Provider:   &provider,
			ProviderID: &providerID,
		}
		if picture != "" {
			user.ProfileImg = &picture
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	case err != nil:
		return nil, err
	}

	updates := map[string]interface{}{}
	if picture != "" {
		updates["profile_img"] = picture
	}
	if user.Provider == nil || *user.Provider != provider {
		updates["provider"] = provider
		updates["provider_id"] = providerID
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

// UpdateProfile 닉네임/프로필 이미지 변경
func (s *AccountService) UpdateProfile(ctx context.Context, userID int64, nickname string, profileImg *string) (*model.User, error) {
	updates := map[string]interface{}{}
	if nickname = strings.TrimSpace(nickname); nickname != "" {
		updates["nickname"] = nickname
	}
	if profileImg != nil {
		updates["profile_img"] = *profileImg
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.GetUser(ctx, userID)
}

// UpgradeToPro 결제 검증 성공 후 Pro 전환 + 결제 기록. 같은 결제의 재요청은 그대로 성공한다.
func (s *AccountService) UpgradeToPro(ctx context.Context, userID int64, orderID, paymentID string) (*model.User, error) {
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Payment
		err := tx.Where("razorpay_payment_id = ?", paymentID).First(&existing).Error
		switch {
		case err == nil:
			if existing.UserID != userID {
				return ErrPaymentAlreadyUsed
			}
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		result := tx.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"is_pro":    true,
			"pro_since": now,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}

		return tx.Create(&model.Payment{
			UserID:            userID,
			RazorpayOrderID:   orderID,
			RazorpayPaymentID: paymentID,
			Status:            model.PaymentStatusVerified.String(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

// RedeemPromo 프로모션 코드 사용. 체험 기간을 trial_days 만큼 늘리고 grants_pro 면 Pro 전환.
func (s *AccountService) RedeemPromo(ctx context.Context, userID int64, code string) (*model.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var promo model.PromoCode
		err := tx.Where("code = ?", code).First(&promo).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPromoNotFound
		}
		if err != nil {
			return err
		}
		if promo.ExpiresAt != nil && !now.Before(*promo.ExpiresAt) {
			return ErrPromoExpired
		}

		// 사용 횟수 증가는 조건부 UPDATE 로 한도를 지킨다
		result := tx.Model(&model.PromoCode{}).
			Where("id = ? AND (max_uses = 0 OR used_count < max_uses)", promo.ID).
			Update("used_count", gorm.Expr("used_count + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrPromoExhausted
		}

		var user model.User
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		updates := map[string]interface{}{}
		if promo.TrialDays > 0 {
			start := now
			if user.TrialEndsAt != nil && user.TrialEndsAt.After(now) {
				start = *user.TrialEndsAt
			}
			updates["trial_ends_at"] = start.AddDate(0, 0, promo.TrialDays)
		}
		if promo.GrantsPro && !user.IsPro {
			updates["is_pro"] = true
			updates["pro_since"] = now
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

// GetBranding 브랜딩 조회
func (s *AccountService) GetBranding(ctx context.Context, userID int64) (*model.Branding, error) {
	var branding model.Branding
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&branding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBrandingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &branding, nil
}

// UpsertBranding 브랜딩 저장 (user_id 기준 덮어쓰기)
func (s *AccountService) UpsertBranding(ctx context.Context, b *model.Branding) (*model.Branding, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"logo_url", "primary_color", "watermark_text", "updated_at"}),
	}).Create(b).Error
	if err != nil {
		return nil, err
	}
	return s.GetBranding(ctx, b.UserID)
}

// WatermarkFor 내보내기에 쓸 브랜딩 워터마크 (없으면 빈 문자열)
func (s *AccountService) WatermarkFor(ctx context.Context, userID int64) string {
	b, err := s.GetBranding(ctx, userID)
	if err != nil || b.WatermarkText == nil {
		return ""
	}
	return *b.WatermarkText
}
