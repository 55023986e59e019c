package controller

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"messenger-sync/config"
	"messenger-sync/middleware"
	"messenger-sync/model"
	"messenger-sync/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt cost of stored password hashes.
var PasswordCost = 14

type AuthSignupInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DisplayName string `json:"displayName"`
}

type AuthLoginInput struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type AuthRenewTokenInput struct {
	RefreshToken string `json:"refresh_token"`
}

type AuthOtpSecretInput struct {
	Password string `json:"password"`
}

type AuthOtpVerifyInput struct {
	Token string `json:"token"`
}

type AuthOtpValidateInput struct {
	Token string `json:"token"`
}

type AuthOtpDisableInput struct {
	Password string `json:"password"`
	Token    string `json:"token"`
}

func (ctl *Controller) AuthSignup(c *fiber.Ctx) error {
	input := new(AuthSignupInput)
	if err := c.BodyParser(input); err != nil {
		return failure(c, fiber.StatusBadRequest, "Review your input")
	}

	email := model.NormalizeEmail(input.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid email address")
	}
	if len(input.Password) < 8 {
		return failure(c, fiber.StatusBadRequest, "Password must be at least 8 characters")
	}

	// If existed email is found, return error
	_, err := ctl.Users.FindUserByEmail(c.UserContext(), email)
	if err == nil {
		return failure(c, fiber.StatusBadRequest, "Email is already registered")
	}
	if !errors.Is(err, utils.ErrNotFound) {
		return internalError(c, err)
	}

	// Generate hash from password.
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), PasswordCost)
	if err != nil {
		return internalError(c, err)
	}

	// Generate OTP secret
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      config.Config("OTP_ISSUER"),
		AccountName: email,
		SecretSize:  15,
	})
	if err != nil {
		return internalError(c, err)
	}

	user := &model.User{
		ID:          utils.UserID(),
		Email:       email,
		FirstName:   strings.TrimSpace(input.FirstName),
		LastName:    strings.TrimSpace(input.LastName),
		DisplayName: strings.TrimSpace(input.DisplayName),
		Password:    string(hash),
		Role:        "user",
		OtpSecret:   key.Secret(),
	}

	if err := ctl.DB.WithContext(c.UserContext()).Create(user).Error; err != nil {
		return internalError(c, err)
	}

	if ctl.Enforcer != nil {
		if _, err := ctl.Enforcer.AddGroupingPolicy(user.ID, user.Role); err != nil {
			return internalError(c, err)
		}
	}

	return success(c, fiber.Map{"id": user.ID})
}

func (ctl *Controller) AuthSignin(c *fiber.Ctx) error {
	input := new(AuthLoginInput)
	if err := c.BodyParser(input); err != nil {
		return failure(c, fiber.StatusBadRequest, "Review your input")
	}

	user, err := ctl.Users.FindUserByEmail(c.UserContext(), input.Login)
	if err != nil && utils.KindOf(err) == utils.KindTransient {
		return internalError(c, err)
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)) != nil {
		return failure(c, fiber.StatusUnauthorized, "Invalid login or password")
	}

	return ctl.issueTokens(c, user.ID, user.OtpEnabled)
}

func (ctl *Controller) AuthTokenRenew(c *fiber.Ctx) error {
	renew := new(AuthRenewTokenInput)
	if err := c.BodyParser(renew); err != nil {
		return failure(c, fiber.StatusBadRequest, "Review your input")
	}

	claims, err := utils.CheckAndExtractTokenMetadata(renew.RefreshToken, "JWT_REFRESH_KEY")
	if err != nil {
		return failure(c, fiber.StatusUnauthorized, "Invalid token")
	}

	userToken, err := ctl.Tokens.Get(c.UserContext(), refreshKey(claims.Id)).Result()
	if err != nil || userToken != renew.RefreshToken {
		return failure(c, fiber.StatusUnauthorized, "Unauthorized, your refresh token was already used")
	}

	return ctl.issueTokens(c, claims.Id, claims.Otp)
}

func (ctl *Controller) AuthOtpSecret(c *fiber.Ctx) error {
	secret := new(AuthOtpSecretInput)
	if err := c.BodyParser(secret); err != nil {
		return failure(c, fiber.StatusBadRequest, "Review your input")
	}

	user, err := ctl.currentUser(c)
	if err != nil {
		return fail(c, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(secret.Password)); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid password")
	}

	return success(c, fiber.Map{
		"secret": user.OtpSecret,
		"url": fmt.Sprintf("otpauth://totp/%s:%s?algorithm=SHA1&digits=6&issuer=%s&period=30&secret=%s",
			config.Config("OTP_ISSUER"),
			user.Email,
			config.Config("OTP_ISSUER"),
			user.OtpSecret,
		),
	})
}

func (ctl *Controller) AuthOtpVerify(c *fiber.Ctx) error {
	verify := new(AuthOtpVerifyInput)
	if err := c.BodyParser(verify); err != nil {
		return failure(c, fiber.StatusBadRequest, "Review your input")
	}

	user, err := ctl.currentUser(c)
	if err != nil {
		return fail(c, err)
	}

	if user.OtpEnabled {
		return failure(c, fiber.StatusBadRequest, "Verification has already been performed earlier")
	}

	if !totp.Validate(verify.Token, user.OtpSecret) {
		return failure(c, fiber.StatusBadRequest, "Invalid token")
	}

	if err := ctl.setOtp(c.UserContext(), user.ID, true); err != nil {
		return internalError(c, err)
	}
	return success(c, nil)
}

func (ctl *Controller) AuthOtpValidate(c *fiber.Ctx) error {
	validate := new(AuthOtpValidateInput)
	if err := c.BodyParser(validate); err != nil {
		return failure(c, fiber.StatusBadRequest, "Review your input")
	}

	user, err := ctl.currentUser(c)
	if err != nil {
		return fail(c, err)
	}

	if !user.OtpEnabled {
		return failure(c, fiber.StatusBadRequest, "2FA has been disabled")
	}

	if !totp.Validate(validate.Token, user.OtpSecret) {
		return failure(c, fiber.StatusBadRequest, "Invalid token")
	}

	return ctl.issueTokens(c, user.ID, false)
}

func (ctl *Controller) AuthOtpDisable(c *fiber.Ctx) error {
	disable := new(AuthOtpDisableInput)
	if err := c.BodyParser(disable); err != nil {
		return failure(c, fiber.StatusBadRequest, "Review your input")
	}

	user, err := ctl.currentUser(c)
	if err != nil {
		return fail(c, err)
	}

	if !user.OtpEnabled {
		return failure(c, fiber.StatusBadRequest, "2fa not enabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(disable.Password)); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid password")
	}

	if !totp.Validate(disable.Token, user.OtpSecret) {
		return failure(c, fiber.StatusBadRequest, "Invalid token")
	}

	if err := ctl.setOtp(c.UserContext(), user.ID, false); err != nil {
		return internalError(c, err)
	}
	return success(c, nil)
}

// issueTokens generates an access/refresh pair and stores the refresh token
// as the only valid one for the user.
func (ctl *Controller) issueTokens(c *fiber.Ctx, userID string, otp bool) error {
	tokens, err := utils.GenerateTokens(userID, otp)
	if err != nil {
		return internalError(c, err)
	}

	if err := ctl.Tokens.Set(c.UserContext(), refreshKey(userID), tokens.Refresh, 0).Err(); err != nil {
		return internalError(c, err)
	}

	return success(c, fiber.Map{
		"access":  tokens.Access,
		"refresh": tokens.Refresh,
		"2fa":     otp,
	})
}

func (ctl *Controller) currentUser(c *fiber.Ctx) (*model.User, error) {
	return ctl.Users.Get(c.UserContext(), middleware.Actor(c))
}

func (ctl *Controller) setOtp(ctx context.Context, userID string, enabled bool) error {
	return ctl.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("otp_enabled", enabled).Error
}

func refreshKey(userID string) string {
	return "refresh:" + userID
}
