package minio

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// PresignedGetObject generates a presigned GET URL for an object in the configured bucket.
// A zero expiry falls back to the configured presign expiry.
func (c *Client) PresignedGetObject(ctx context.Context, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	bucketName := c.config.Bucket
	if objectName == "" {
		return nil, WrapError("PresignedGetObject", ErrInvalidObjectName, bucketName, objectName)
	}
	if expiry == 0 {
		expiry = c.config.PresignExpiry
	}
	if expiry < time.Second {
		return nil, WrapErrorWithMessage("PresignedGetObject", ErrInvalidArgument, "expiry must be at least one second")
	}

	presignedURL, err := c.client.PresignedGetObject(ctx, bucketName, objectName, expiry, reqParams)
	if err != nil {
		return nil, WrapError("PresignedGetObject", err, bucketName, objectName)
	}

	c.logger.Debug("presigned GET URL generated",
		zap.String("bucket", bucketName),
		zap.String("object", objectName),
		zap.Duration("expiry", expiry),
	)
	return presignedURL, nil
}
