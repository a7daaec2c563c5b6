package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"tutorbox-backend/internal/auth"
	"tutorbox-backend/internal/logger"
	"tutorbox-backend/internal/model"
	"tutorbox-backend/internal/service"
	"tutorbox-backend/internal/session"
)

// AuthHandler 인증 핸들러
type AuthHandler struct {
	accounts     *service.AccountService
	jwtManager   *auth.JWTManager
	googleAuth   auth.IDTokenVerifier
	sessions     *session.Registry
	secureCookie bool
	log          *logger.Logger
}

// NewAuthHandler AuthHandler 생성
func NewAuthHandler(accounts *service.AccountService, jwtManager *auth.JWTManager, googleAuth auth.IDTokenVerifier, sessions *session.Registry, secureCookie bool, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		jwtManager:   jwtManager,
		googleAuth:   googleAuth,
		sessions:     sessions,
		secureCookie: secureCookie,
		log:          log,
	}
}

// GoogleLoginRequest Google 로그인 요청
type GoogleLoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// UpdateMeRequest 프로필 수정 요청
type UpdateMeRequest struct {
	Nickname   string  `json:"nickname" validate:"omitempty,max=100"`
	ProfileImg *string `json:"profile_img" validate:"omitempty,url"`
}

// AuthResponse 인증 응답
type AuthResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
}

// UserResponse 사용자 응답
type UserResponse struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Nickname     string     `json:"nickname"`
	ProfileImg   *string    `json:"profile_img,omitempty"`
	Provider     *string    `json:"provider,omitempty"`
	IsPro        bool       `json:"is_pro"`
	TrialEndsAt  *time.Time `json:"trial_ends_at,omitempty"`
	HasProAccess bool       `json:"has_pro_access"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Nickname:     u.Nickname,
		ProfileImg:   u.ProfileImg,
		Provider:     u.Provider,
		IsPro:        u.IsPro,
		TrialEndsAt:  u.TrialEndsAt,
		HasProAccess: u.HasProAccess(time.Now()),
	}
}

// syncSession 최신 사용자 정보를 세션에 반영
func (h *AuthHandler) syncSession(u *model.User) {
	identity := session.FromUser(u)
	sess := h.sessions.Acquire(identity)
	sess.Update(func(i *session.Identity) { *i = identity })
}

func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, value string, maxAge int) {
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   h.secureCookie,
		HTTPOnly: true,
		SameSite: "Lax",
	})
}

// GoogleLogin Google OAuth 로그인
func (h *AuthHandler) GoogleLogin(c *fiber.Ctx) error {
	var req GoogleLoginRequest
	if ok, err := parseAndValidate(c, &req); !ok {
		return err
	}

	// Google ID Token 검증
	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	googleUser, err := h.googleAuth.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		h.log.Warn("google token rejected", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid google token",
		})
	}

	user, err := h.accounts.LoginWithGoogle(ctx, googleUser.Email, sanitizeString(googleUser.Name), googleUser.Picture, googleUser.ID)
	if err != nil {
		h.log.Error("login failed", "email", googleUser.Email, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to sign in",
		})
	}

	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Nickname)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate token",
		})
	}

	refreshToken, err := h.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate refresh token",
		})
	}

	// HTTP-Only 쿠키로 리프레시 토큰 설정
	h.setRefreshCookie(c, refreshToken, int(h.jwtManager.RefreshExpiry().Seconds()))
	h.syncSession(user)
	h.log.Info("user signed in", "user_id", user.ID)

	return c.JSON(AuthResponse{
		User:        toUserResponse(user),
		AccessToken: accessToken,
		ExpiresIn:   int64(h.jwtManager.AccessExpiry().Seconds()),
	})
}

// RefreshToken 토큰 갱신
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	refreshToken := c.Cookies("refresh_token")
	if refreshToken == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "refresh token not found",
		})
	}

	userID, err := h.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		h.setRefreshCookie(c, "", -1)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid or expired refresh token",
		})
	}

	user, err := h.accounts.GetUser(c.UserContext(), userID)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Nickname)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate token",
		})
	}
	h.syncSession(user)

	return c.JSON(fiber.Map{
		"access_token": accessToken,
		"expires_in":   int64(h.jwtManager.AccessExpiry().Seconds()),
	})
}

// Logout 로그아웃. 세션도 닫는다.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.setRefreshCookie(c, "", -1)
	if userID, err := currentUserID(c); err == nil {
		h.sessions.Release(userID)
	}
	return c.JSON(fiber.Map{
		"message": "logged out successfully",
	})
}

// GetMe 현재 사용자 정보
func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	user, err := h.accounts.GetUser(c.UserContext(), userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}
	return c.JSON(toUserResponse(user))
}

// UpdateMe 닉네임/프로필 이미지 수정
func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req UpdateMeRequest
	if ok, err := parseAndValidate(c, &req); !ok {
		return err
	}

	user, err := h.accounts.UpdateProfile(c.UserContext(), userID, sanitizeString(req.Nickname), req.ProfileImg)
	if errors.Is(err, service.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update profile",
		})
	}
	h.syncSession(user)
	return c.JSON(toUserResponse(user))
}
