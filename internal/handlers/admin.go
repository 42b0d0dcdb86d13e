package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lkmo/lkmo-backend/internal/models"
	"github.com/lkmo/lkmo-backend/internal/services"
	"go.uber.org/zap"
)

type UpdateRoleInput struct {
	Role models.Role `json:"role" binding:"required,oneof=user admin"`
}

// ListUsers pages through all accounts for the admin panel.
func ListUsers(users *services.UserDirectory, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit < 1 || limit > 100 {
			limit = 20
		}

		result, err := users.List(c.Request.Context(), c.Query("search"), page, limit)
		if err != nil {
			logger.Error("failed to list users", zap.Error(err))
			c.JSON(500, gin.H{"error": "Failed to fetch users"})
			return
		}

		list := make([]gin.H, 0, len(result.Users))
		for i := range result.Users {
			list = append(list, userJSON(&result.Users[i]))
		}

		c.JSON(200, gin.H{
			"users": list,
			"pagination": gin.H{
				"page":       page,
				"limit":      limit,
				"total":      result.Total,
				"totalPages": (result.Total + int64(limit) - 1) / int64(limit),
			},
		})
	}
}

// UpdateUserRole promotes or demotes another account. Admins cannot change
// their own role.
func UpdateUserRole(users *services.UserDirectory, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := targetUserID(c)
		if !ok {
			return
		}

		var input UpdateRoleInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": "Role must be user or admin"})
			return
		}

		user, err := users.SetRole(c.Request.Context(), id, input.Role)
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(404, gin.H{"error": "User not found"})
			return
		}
		if err != nil {
			logger.Error("failed to update role", zap.Uint("user_id", id), zap.Error(err))
			c.JSON(500, gin.H{"error": "Failed to update role"})
			return
		}

		logger.Info("user role changed",
			zap.Uint("user_id", id),
			zap.String("role", string(input.Role)),
			zap.Uint("admin_id", c.GetUint("userId")))

		c.JSON(200, gin.H{
			"message": "Role updated successfully",
			"user":    userJSON(user),
		})
	}
}

// DeleteUser removes another account and its pending reset challenges.
func DeleteUser(users *services.UserDirectory, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := targetUserID(c)
		if !ok {
			return
		}

		err := users.Delete(c.Request.Context(), id)
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(404, gin.H{"error": "User not found"})
			return
		}
		if err != nil {
			logger.Error("failed to delete user", zap.Uint("user_id", id), zap.Error(err))
			c.JSON(500, gin.H{"error": "Failed to delete user"})
			return
		}

		logger.Info("user deleted", zap.Uint("user_id", id), zap.Uint("admin_id", c.GetUint("userId")))
		c.JSON(200, gin.H{"message": "User deleted successfully"})
	}
}

// targetUserID parses :id and rejects the caller's own account.
func targetUserID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(400, gin.H{"error": "Invalid user ID"})
		return 0, false
	}
	if uint(id) == c.GetUint("userId") {
		c.JSON(400, gin.H{"error": "Cannot modify your own account"})
		return 0, false
	}
	return uint(id), true
}
