package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/lkmo/lkmo-backend/internal/config"
	"go.uber.org/zap"
)

// MaxImageSize bounds uploaded images.
const MaxImageSize = 5 << 20

// ImageStorage keeps user-uploaded images and hands back public URLs.
type ImageStorage interface {
	Upload(ctx context.Context, file *multipart.FileHeader, folder string, ownerID uint) (string, error)
	// Delete removes an image previously returned by Upload. URLs this
	// storage does not own are ignored.
	Delete(ctx context.Context, url string) error
}

// NewImageStorage returns S3 storage when AWS is configured and local disk
// storage otherwise.
func NewImageStorage(cfg config.StorageConfig, baseURL string, logger *zap.Logger) (ImageStorage, error) {
	if cfg.UseS3() {
		s, err := NewS3Storage(cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("using S3 image storage", zap.String("bucket", cfg.S3Bucket))
		return s, nil
	}
	logger.Warn("AWS S3 not configured, using local file storage", zap.String("dir", cfg.UploadDir))
	return NewLocalStorage(cfg.UploadDir, baseURL)
}

var unsafeFolderChars = regexp.MustCompile(`[^a-zA-Z0-9_\-/]`)

// objectKey builds folder/owner/timestamp-random.ext.
func objectKey(folder string, ownerID uint, filename string) (string, error) {
	folder = strings.ReplaceAll(strings.TrimSpace(folder), "\\", "/")
	folder = unsafeFolderChars.ReplaceAllString(strings.ReplaceAll(folder, " ", "-"), "")
	folder = strings.Trim(folder, "/")
	if folder == "" {
		folder = "uploads"
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}

	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate file name: %w", err)
	}

	parts := []string{folder}
	if ownerID != 0 {
		parts = append(parts, fmt.Sprintf("%d", ownerID))
	}
	return fmt.Sprintf("%s/%d-%s%s", strings.Join(parts, "/"), time.Now().UnixMilli(), hex.EncodeToString(suffix), ext), nil
}

// readImage loads the upload and checks that it is an image.
func readImage(file *multipart.FileHeader) ([]byte, string, error) {
	if file.Size > MaxImageSize {
		return nil, "", fmt.Errorf("image exceeds %d bytes", MaxImageSize)
	}
	src, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	buffer := bytes.NewBuffer(nil)
	if _, err := io.Copy(buffer, io.LimitReader(src, MaxImageSize+1)); err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	if buffer.Len() > MaxImageSize {
		return nil, "", fmt.Errorf("image exceeds %d bytes", MaxImageSize)
	}

	contentType := http.DetectContentType(buffer.Bytes())
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("unsupported content type %s", contentType)
	}
	return buffer.Bytes(), contentType, nil
}

// S3Storage stores images in an S3 bucket.
type S3Storage struct {
	bucket   string
	region   string
	client   *s3.S3
	uploader *s3manager.Uploader
}

func NewS3Storage(cfg config.StorageConfig) (*S3Storage, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWSRegion),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWSAccessKey,
			cfg.AWSSecretKey,
			"", // Token (optional)
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Storage{
		bucket:   cfg.S3Bucket,
		region:   cfg.AWSRegion,
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (s *S3Storage) publicBase() string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.bucket, s.region)
}

func (s *S3Storage) Upload(ctx context.Context, file *multipart.FileHeader, folder string, ownerID uint) (string, error) {
	data, contentType, err := readImage(file)
	if err != nil {
		return "", err
	}
	key, err := objectKey(folder, ownerID, file.Filename)
	if err != nil {
		return "", err
	}

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("max-age=3600"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return s.publicBase() + key, nil
}

func (s *S3Storage) Delete(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, s.publicBase())
	if !ok || key == "" {
		return nil
	}
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// LocalStorage writes images under a directory served at /uploads.
type LocalStorage struct {
	dir     string
	baseURL string
}

func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *LocalStorage) publicBase() string {
	return l.baseURL + "/uploads/"
}

func (l *LocalStorage) Upload(_ context.Context, file *multipart.FileHeader, folder string, ownerID uint) (string, error) {
	data, _, err := readImage(file)
	if err != nil {
		return "", err
	}
	key, err := objectKey(folder, ownerID, file.Filename)
	if err != nil {
		return "", err
	}

	path := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return l.publicBase() + key, nil
}

func (l *LocalStorage) Delete(_ context.Context, url string) error {
	key, ok := strings.CutPrefix(url, l.publicBase())
	if !ok || key == "" || strings.Contains(key, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(l.dir, filepath.FromSlash(key)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
