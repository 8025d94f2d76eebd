package minio

import "context"

// EnsureBucket creates the configured bucket when it does not exist yet
func (c *Client) EnsureBucket(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	return c.ensureBucket(ctx, c.config.Bucket)
}
