package handlers

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/lkmo/lkmo-backend/internal/passwordreset"
	"go.uber.org/zap"
)

func init() {
	// validation errors report the json field names clients send
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// PasswordResetService is the part of passwordreset.Manager the handlers use.
type PasswordResetService interface {
	RequestChallenge(ctx context.Context, email string) error
	VerifyChallenge(ctx context.Context, email, code string) (string, error)
	CommitNewPassword(ctx context.Context, email, challengeRef, newPassword, confirmPassword string) (*passwordreset.CommitResult, error)
}

type RequestResetInput struct {
	Email string `json:"email" binding:"required,email"`
}

type VerifyResetInput struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

type CommitResetInput struct {
	Email           string `json:"email" binding:"required,email"`
	ChallengeRef    string `json:"challengeRef" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

// RequestPasswordReset issues a code. Unknown emails get the same response as
// registered ones.
func RequestPasswordReset(svc PasswordResetService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input RequestResetInput
		if err := c.ShouldBindJSON(&input); err != nil {
			validationFailed(c, err)
			return
		}

		if err := svc.RequestChallenge(c.Request.Context(), input.Email); err != nil {
			resetError(c, logger, err)
			return
		}

		c.JSON(200, gin.H{
			"ok":      true,
			"message": "If the email is registered, an OTP code has been sent",
		})
	}
}

func VerifyPasswordReset(svc PasswordResetService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input VerifyResetInput
		if err := c.ShouldBindJSON(&input); err != nil {
			validationFailed(c, err)
			return
		}

		ref, err := svc.VerifyChallenge(c.Request.Context(), input.Email, input.Code)
		if err != nil {
			resetError(c, logger, err)
			return
		}

		c.JSON(200, gin.H{
			"ok":           true,
			"message":      "OTP verified, you can now set a new password",
			"challengeRef": ref,
		})
	}
}

func CommitPasswordReset(svc PasswordResetService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CommitResetInput
		if err := c.ShouldBindJSON(&input); err != nil {
			validationFailed(c, err)
			return
		}
		if input.Password != input.ConfirmPassword {
			c.JSON(400, gin.H{
				"ok":      false,
				"kind":    passwordreset.KindMismatch,
				"message": "Password and confirmation do not match",
			})
			return
		}

		result, err := svc.CommitNewPassword(c.Request.Context(), input.Email, input.ChallengeRef, input.Password, input.ConfirmPassword)
		if err != nil {
			resetError(c, logger, err)
			return
		}

		body := gin.H{
			"ok":      true,
			"message": "Password has been reset, please sign in with your new password",
		}
		if len(result.Warnings) > 0 {
			body["warnings"] = result.Warnings
		}
		c.JSON(200, body)
	}
}

var resetStatus = map[passwordreset.Kind]int{
	passwordreset.KindThrottled:       429,
	passwordreset.KindAccountNotFound: 404,
	passwordreset.KindDeliveryFailed:  500,
}

// resetError writes the {ok:false, kind, message, ...} body for err.
func resetError(c *gin.Context, logger *zap.Logger, err error) {
	var rerr *passwordreset.Error
	if !errors.As(err, &rerr) {
		logger.Error("password reset failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(500, gin.H{"ok": false, "kind": "Internal", "message": "Internal server error"})
		return
	}

	status, ok := resetStatus[rerr.Kind]
	if !ok {
		status = 400
	}

	body := gin.H{"ok": false, "kind": rerr.Kind, "message": rerr.Message}
	switch rerr.Kind {
	case passwordreset.KindExternalAuthOnly:
		body["email"] = rerr.Email
		body["isExternalAccount"] = true
	case passwordreset.KindThrottled:
		if rerr.CooldownUntil != nil {
			body["cooldownUntil"] = rerr.CooldownUntil.UTC().Format(time.RFC3339)
		}
		if rerr.RemainingSeconds > 0 {
			body["remainingSeconds"] = rerr.RemainingSeconds
		}
		if rerr.CooldownLevel > 0 {
			body["cooldownLevel"] = rerr.CooldownLevel
		}
	case passwordreset.KindInvalidCode:
		body["remainingAttempts"] = rerr.RemainingAttempts
	}
	c.JSON(status, body)
}

// validationFailed reports binding errors per field.
func validationFailed(c *gin.Context, err error) {
	fields := gin.H{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	}
	c.JSON(400, gin.H{
		"ok":      false,
		"kind":    "ValidationFailed",
		"message": "Invalid request",
		"errors":  fields,
	})
}
