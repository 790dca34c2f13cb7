package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/healthcare_records/internal/middleware/auth"
	"github.com/Skotchmaster/healthcare_records/internal/models"
	"github.com/Skotchmaster/healthcare_records/internal/service"
)

type AuthHandler struct {
	Svc *service.AuthService
}

type messageResponse struct {
	Message string `json:"message"`
}

type sessionResponse struct {
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	AccessExpiresAt  time.Time    `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt"`
	User             *models.User `json:"user"`
}

func (h *AuthHandler) Signup(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Age      int    `json:"age"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.Svc.Signup(c.Request().Context(), service.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Age:      req.Age,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

// Login checks the password and sends a one-time code. Tokens are only
// issued by VerifyOTP.
func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	ch, err := h.Svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, struct {
		Status string `json:"status"`
		*service.Challenge
	}{"otp_required", ch})
}

func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		OTP      string `json:"otp"`
		TOTPCode string `json:"totpCode"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	s, err := h.Svc.VerifyLoginOTP(c.Request().Context(), service.VerifyInput{
		Email:    req.Email,
		Code:     req.OTP,
		TOTPCode: req.TOTPCode,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionResponse{
		AccessToken:      s.AccessToken,
		RefreshToken:     s.RefreshToken,
		AccessExpiresAt:  s.AccessExp,
		RefreshExpiresAt: s.RefreshExp,
		User:             s.User,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	access, exp, err := h.Svc.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"accessToken":     access,
		"accessExpiresAt": exp,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Svc.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{"logged out"})
}

// ForgotPassword answers the same way whether or not the address is known.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	h.Svc.ForgotPassword(c.Request().Context(), req.Email)
	return c.JSON(http.StatusOK, messageResponse{"if the account exists, a reset code has been sent"})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req struct {
		Email       string `json:"email"`
		OTP         string `json:"otp"`
		NewPassword string `json:"newPassword"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Svc.ResetPassword(c.Request().Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{"password updated"})
}

func (h *AuthHandler) Me(c echo.Context) error {
	u, err := h.Svc.Me(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Svc.ChangePassword(c.Request().Context(), auth.UserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{"password updated"})
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *AuthHandler) GenerateTwoFactor(c echo.Context) error {
	en, err := h.Svc.GenerateTwoFactor(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, en)
}

func (h *AuthHandler) EnableTwoFactor(c echo.Context) error {
	var req codeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Svc.EnableTwoFactor(c.Request().Context(), auth.UserID(c), req.Code); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{"two-factor authentication enabled"})
}

func (h *AuthHandler) DisableTwoFactor(c echo.Context) error {
	var req codeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Svc.DisableTwoFactor(c.Request().Context(), auth.UserID(c), req.Code); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{"two-factor authentication disabled"})
}
