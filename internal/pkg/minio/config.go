package minio

import (
	"errors"
	"time"
)

// BucketLookupType represents the type of bucket lookup
type BucketLookupType string

const (
	BucketLookupAuto BucketLookupType = "auto"
	BucketLookupDNS  BucketLookupType = "dns"  // bucket.endpoint
	BucketLookupPath BucketLookupType = "path" // endpoint/bucket
)

// Config represents the configuration for MinIO client
type Config struct {
	// Endpoint is the S3-compatible object storage endpoint, e.g. "localhost:9000"
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`

	// Region avoids a bucket-location round trip when set
	Region string `mapstructure:"region"`
	UseSSL bool   `mapstructure:"use_ssl"`

	BucketLookup BucketLookupType `mapstructure:"bucket_lookup"`

	// Bucket holds synthesized speech objects
	Bucket string `mapstructure:"bucket"`

	// PresignExpiry is the lifetime of playback URLs
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio: endpoint is required")
	}
	if c.AccessKeyID == "" {
		return errors.New("minio: access key ID is required")
	}
	if c.SecretAccessKey == "" {
		return errors.New("minio: secret access key is required")
	}
	switch c.BucketLookup {
	case "", BucketLookupAuto, BucketLookupDNS, BucketLookupPath:
	default:
		return errors.New("minio: invalid bucket lookup type")
	}
	if err := ValidateBucketName(c.Bucket); err != nil {
		return err
	}
	if c.PresignExpiry < 0 || c.PresignExpiry > 7*24*time.Hour {
		return errors.New("minio: presign_expiry must be between 0 and 7 days")
	}
	return nil
}

// SetDefaults sets default values for unspecified configuration fields
func (c *Config) SetDefaults() {
	if c.BucketLookup == "" {
		c.BucketLookup = BucketLookupAuto
	}
	if c.Bucket == "" {
		c.Bucket = "st2u-speech"
	}
	if c.PresignExpiry == 0 {
		c.PresignExpiry = time.Hour
	}
}
