package minio

import (
	"fmt"
	"net"
	"path"
	"regexp"
	"strings"
)

// bucketNameRegex validates bucket names according to S3 rules
var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{1,61}[a-z0-9]$`)

// ValidateBucketName validates a bucket name according to S3 naming rules
func ValidateBucketName(bucketName string) error {
	if bucketName == "" {
		return fmt.Errorf("bucket name cannot be empty")
	}
	if !bucketNameRegex.MatchString(bucketName) {
		return fmt.Errorf("bucket name %q must be 3-63 lowercase letters, numbers or hyphens", bucketName)
	}
	if strings.Contains(bucketName, "--") {
		return fmt.Errorf("bucket name cannot contain consecutive hyphens")
	}
	if net.ParseIP(bucketName) != nil {
		return fmt.Errorf("bucket name cannot be formatted as an IP address")
	}
	return nil
}

// ValidateObjectName validates an object name
func ValidateObjectName(objectName string) error {
	if objectName == "" {
		return fmt.Errorf("object name cannot be empty")
	}
	if len(objectName) > 1024 {
		return fmt.Errorf("object name cannot exceed 1024 characters")
	}
	if strings.Contains(objectName, "\x00") {
		return fmt.Errorf("object name cannot contain null bytes")
	}
	return nil
}

// ObjectKey joins key segments with "/" dropping empty ones and stray slashes
func ObjectKey(segments ...string) string {
	cleaned := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(strings.ReplaceAll(s, "\x00", ""), "/")
		if s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return path.Join(cleaned...)
}
