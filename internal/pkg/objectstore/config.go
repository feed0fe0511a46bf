package objectstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/FelixHaller/RoomCanvas/internal/pkg/env"
)

// Config holds the S3 object storage configuration.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PresignTTL      time.Duration
}

// LoadConfig loads the object storage configuration from environment variables.
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PresignTTL:      time.Hour,
	}

	if config.AccessKeyID == "" {
		return nil, errors.New("S3_ACCESS_KEY_ID is required")
	}
	if config.SecretAccessKey == "" {
		return nil, errors.New("S3_SECRET_ACCESS_KEY is required")
	}
	if config.BucketName == "" {
		return nil, errors.New("S3_BUCKET_NAME is required")
	}

	return config, nil
}

// GetObjectKey generates a standardized object key for an uploaded property photo.
// Format: uploads/YYYY/MM/UUID.ext
func (c *Config) GetObjectKey(imageUUID, fileExtension string, year, month int) string {
	return fmt.Sprintf("uploads/%04d/%02d/%s%s", year, month, imageUUID, fileExtension)
}

// GetResultObjectKey generates a standardized object key for a rendered result.
func (c *Config) GetResultObjectKey(imageUUID string, year, month int) string {
	return fmt.Sprintf("results/%04d/%02d/%s.png", year, month, imageUUID)
}

// GetBucketName returns the bucket name as configured.
func (c *Config) GetBucketName() string {
	return c.BucketName
}
