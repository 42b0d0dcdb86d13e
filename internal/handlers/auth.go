package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lkmo/lkmo-backend/internal/models"
	"github.com/lkmo/lkmo-backend/internal/services"
	"github.com/lkmo/lkmo-backend/pkg/utils"
	"go.uber.org/zap"
)

type RegisterInput struct {
	Name     string `json:"name" binding:"required,min=2"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func userJSON(user *models.User) gin.H {
	return gin.H{
		"id":       user.ID,
		"name":     user.Name,
		"email":    user.Email,
		"role":     user.Role,
		"image":    user.Image,
		"bio":      user.Bio,
		"location": user.Location,
	}
}

func Register(users *services.UserDirectory, tokens *utils.TokenIssuer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input RegisterInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		user := &models.User{
			Name:  strings.TrimSpace(input.Name),
			Email: input.Email,
			Role:  models.RoleUser,
		}
		if err := users.Create(c.Request.Context(), user, input.Password); err != nil {
			if errors.Is(err, services.ErrEmailTaken) {
				c.JSON(400, gin.H{"error": "Email already registered"})
				return
			}
			logger.Error("register failed", zap.Error(err))
			c.JSON(500, gin.H{"error": "Failed to create user"})
			return
		}

		token, err := tokens.GenerateToken(user)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to generate token"})
			return
		}

		c.JSON(201, gin.H{
			"message": "User created successfully",
			"token":   token,
			"user":    userJSON(user),
		})
	}
}

func Login(users *services.UserDirectory, tokens *utils.TokenIssuer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input LoginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		user, err := users.FindByEmail(c.Request.Context(), input.Email)
		if err != nil {
			if !errors.Is(err, services.ErrUserNotFound) {
				logger.Error("login lookup failed", zap.Error(err))
			}
			c.JSON(401, gin.H{"error": "Invalid credentials"})
			return
		}

		// accounts created through Google have no password to check
		if err := user.CheckPassword(input.Password); err != nil {
			c.JSON(401, gin.H{"error": "Invalid credentials"})
			return
		}

		token, err := tokens.GenerateToken(user)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to generate token"})
			return
		}

		c.JSON(200, gin.H{
			"token": token,
			"user":  userJSON(user),
		})
	}
}

// Me returns the authenticated user.
func Me(users *services.UserDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := users.FindByID(c.Request.Context(), c.GetUint("userId"))
		if err != nil {
			c.JSON(404, gin.H{"error": "User not found"})
			return
		}
		c.JSON(200, gin.H{"user": userJSON(user)})
	}
}
