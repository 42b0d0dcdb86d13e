package handlers

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/lkmo/lkmo-backend/internal/services"
	"go.uber.org/zap"
)

const profileImageFolder = "profile-images"

// GetProfile retrieves the user's profile
func GetProfile(users *services.UserDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := users.FindByID(c.Request.Context(), c.GetUint("userId"))
		if err != nil {
			c.JSON(404, gin.H{"error": "User not found"})
			return
		}
		c.JSON(200, userJSON(user))
	}
}

// UpdateProfile updates name, bio, location and optionally the profile
// image from a multipart form.
func UpdateProfile(users *services.UserDirectory, storage services.ImageStorage, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxImageSize+1<<20)
		if err := c.Request.ParseMultipartForm(services.MaxImageSize); err != nil && err != http.ErrNotMultipart {
			c.JSON(400, gin.H{"error": "Invalid form data"})
			return
		}

		user, err := users.FindByID(c.Request.Context(), userId)
		if err != nil {
			c.JSON(404, gin.H{"error": "User not found"})
			return
		}

		// Update fields individually; absent fields keep their value
		if name, ok := c.GetPostForm("name"); ok {
			name = strings.TrimSpace(name)
			if utf8.RuneCountInString(name) < 2 {
				c.JSON(400, gin.H{"error": "Name must be at least 2 characters"})
				return
			}
			user.Name = name
		}
		if bio, ok := c.GetPostForm("bio"); ok {
			if utf8.RuneCountInString(bio) > 500 {
				c.JSON(400, gin.H{"error": "Bio must be at most 500 characters"})
				return
			}
			user.Bio = bio
		}
		if location, ok := c.GetPostForm("location"); ok {
			user.Location = strings.TrimSpace(location)
		}

		oldImage := user.Image
		if file, err := c.FormFile("image"); err == nil {
			url, err := storage.Upload(c.Request.Context(), file, profileImageFolder, user.ID)
			if err != nil {
				logger.Warn("profile image upload failed", zap.Uint("user_id", user.ID), zap.Error(err))
				c.JSON(400, gin.H{"error": "Failed to upload image: " + err.Error()})
				return
			}
			user.Image = url
		}

		if err := users.Save(c.Request.Context(), user); err != nil {
			logger.Error("profile update failed", zap.Uint("user_id", user.ID), zap.Error(err))
			c.JSON(500, gin.H{"error": "Failed to update profile"})
			return
		}

		if oldImage != "" && oldImage != user.Image {
			if err := storage.Delete(c.Request.Context(), oldImage); err != nil {
				logger.Warn("failed to delete old profile image", zap.String("url", oldImage), zap.Error(err))
			}
		}

		c.JSON(200, userJSON(user))
	}
}
