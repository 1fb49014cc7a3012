// Package storage archives generated documents in S3.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rs/zerolog"

	"medical-voice-agent/internal/platform/logger"
)

type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

type S3Archive struct {
	uploader uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

func NewS3Archive(cfg S3Config) (*S3Archive, error) {
	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithMaxRetries(4)
	if cfg.AccessKeyID != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3 session: %w", err)
	}
	return newS3Archive(s3manager.NewUploader(sess), cfg.Bucket, cfg.Prefix), nil
}

func newS3Archive(u uploader, bucket, prefix string) *S3Archive {
	return &S3Archive{
		uploader: u,
		bucket:   bucket,
		prefix:   prefix,
		log:      logger.NewLogger("S3Archive"),
	}
}

// Put uploads data under the archive prefix and returns the object location.
func (a *S3Archive) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	key := path.Join(a.prefix, name)
	log := a.log.With().Str("key", key).Str("bucket", a.bucket).Logger()

	log.Debug().Int("bytes", len(data)).Msg("Uploading the file")
	out, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to upload file")
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return out.Location, nil
}
