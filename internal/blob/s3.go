package blob

import (
	"context"

	infraS3 "materialcore/internal/infra/blob/s3"
)

// S3Config configures the S3 backend.
type S3Config = infraS3.Config

// NewS3 returns a Store backed by an S3 compatible bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests returns an S3 Store served by an in-process fake endpoint.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
