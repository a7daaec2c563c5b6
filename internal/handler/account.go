package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/model"
	"tutorbox-backend/internal/payment"
	"tutorbox-backend/internal/service"
	"tutorbox-backend/internal/session"
)

// AccountHandler 결제/프로모션/브랜딩 핸들러
type AccountHandler struct {
	accounts *service.AccountService
	verifier *payment.Verifier
	sessions *session.Registry
	log      *logger.Logger
}

// NewAccountHandler AccountHandler 생성
func NewAccountHandler(accounts *service.AccountService, verifier *payment.Verifier, sessions *session.Registry, log *logger.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, verifier: verifier, sessions: sessions, log: log}
}

// VerifyPaymentRequest Razorpay 체크아웃 결과
type VerifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// RedeemPromoRequest 프로모션 코드 사용 요청
type RedeemPromoRequest struct {
	Code string `json:"code" validate:"required,notblank,max=50"`
}

// BrandingRequest 브랜딩 저장 요청
type BrandingRequest struct {
	LogoURL       *string `json:"logo_url" validate:"omitempty,url"`
	PrimaryColor  string  `json:"primary_color" validate:"omitempty,hexcolor"`
	WatermarkText *string `json:"watermark_text" validate:"omitempty,max=100"`
}

// refreshSession 열린 세션에 사용자 변경 알림
func (h *AccountHandler) refreshSession(u *model.User) {
	sess, ok := h.sessions.Get(u.ID)
	if !ok {
		return
	}
	identity := session.FromUser(u)
	sess.Update(func(i *session.Identity) { *i = identity })
}

// VerifyPayment 결제 서명 검증 후 Pro 전환. 검증 실패 시 아무것도 바꾸지 않는다.
func (h *AccountHandler) VerifyPayment(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.verifier.Verify(req.OrderID, req.PaymentID, req.Signature); err != nil {
		switch {
		case errors.Is(err, payment.ErrNotConfigured):
			h.log.Error("payment verification unavailable", "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "payments are not configured",
			})
		case errors.Is(err, payment.ErrMissingFields):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		default:
			h.log.Warn("payment signature rejected", "user_id", userID, "order_id", req.OrderID)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid payment signature",
			})
		}
	}

	user, err := h.accounts.UpgradeToPro(c.UserContext(), userID, req.OrderID, req.PaymentID)
	if errors.Is(err, service.ErrPaymentAlreadyUsed) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if errors.Is(err, service.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}
	if err != nil {
		h.log.Error("pro upgrade failed", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to upgrade account",
		})
	}

	h.refreshSession(user)
	h.log.Info("user upgraded to pro", "user_id", userID, "payment_id", req.PaymentID)
	return c.JSON(fiber.Map{
		"success": true,
		"user":    toUserResponse(user),
	})
}

// RedeemPromo 프로모션 코드 사용
func (h *AccountHandler) RedeemPromo(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req RedeemPromoRequest
	if ok, err := parseAndValidate(c, &req); !ok {
		return err
	}

	user, err := h.accounts.RedeemPromo(c.UserContext(), userID, req.Code)
	switch {
	case errors.Is(err, service.ErrPromoNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrPromoExpired), errors.Is(err, service.ErrPromoExhausted):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		h.log.Error("promo redeem failed", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to redeem promo code",
		})
	}

	h.refreshSession(user)
	return c.JSON(toUserResponse(user))
}

// requireProAccess Pro 또는 체험 중이 아니면 403
func (h *AccountHandler) requireProAccess(c *fiber.Ctx) (int64, bool, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return 0, false, unauthorized(c)
	}
	user, err := h.accounts.GetUser(c.UserContext(), userID)
	if err != nil {
		return 0, false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}
	if !user.HasProAccess(time.Now()) {
		return 0, false, c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "branding requires a Pro plan",
		})
	}
	return userID, true, nil
}

// GetBranding 내 브랜딩 조회 (Pro 전용)
func (h *AccountHandler) GetBranding(c *fiber.Ctx) error {
	userID, ok, err := h.requireProAccess(c)
	if !ok {
		return err
	}

	branding, err := h.accounts.GetBranding(c.UserContext(), userID)
	if errors.Is(err, service.ErrBrandingNotFound) {
		return c.JSON(model.Branding{UserID: userID, PrimaryColor: "#000000"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load branding",
		})
	}
	return c.JSON(branding)
}

// UpdateBranding 브랜딩 저장 (Pro 전용)
func (h *AccountHandler) UpdateBranding(c *fiber.Ctx) error {
	userID, ok, err := h.requireProAccess(c)
	if !ok {
		return err
	}

	var req BrandingRequest
	if ok, err := parseAndValidate(c, &req); !ok {
		return err
	}

	b := &model.Branding{
		UserID:       userID,
		LogoURL:      req.LogoURL,
		PrimaryColor: req.PrimaryColor,
	}
	if b.PrimaryColor == "" {
		b.PrimaryColor = "#000000"
	}
	if req.WatermarkText != nil {
		text := sanitizeString(*req.WatermarkText)
		b.WatermarkText = &text
	}

	saved, err := h.accounts.UpsertBranding(c.UserContext(), b)
	if err != nil {
		h.log.Error("branding save failed", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save branding",
		})
	}
	return c.JSON(saved)
}
