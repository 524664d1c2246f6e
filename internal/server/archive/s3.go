// Package archive snapshots a user's history to S3-compatible object storage
// and hands back a time-limited download link.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/gpstracker/internal/api"
	"github.com/dmitrijs2005/gpstracker/internal/server/config"
	"github.com/dmitrijs2005/gpstracker/internal/server/models"
)

// ObjectAPI is the subset of *s3.Client used for uploads.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PresignAPI is the subset of *s3.PresignClient used for download links.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Result describes one uploaded snapshot.
type Result struct {
	Key       string
	Count     int
	URL       string
	ExpiresAt time.Time
}

type S3Archiver struct {
	target  PresignTarget
	bucket  string
	ttl     time.Duration
	now     func() time.Time
}

// PresignTarget bundles upload and presign access to one bucket.
type PresignTarget struct {
	Objects ObjectAPI
	Presign PresignAPI
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// NewS3Archiver builds an archiver from cfg. Static credentials are used when
// S3AccessKey is set, otherwise the default AWS chain. A custom endpoint
// switches to path-style addressing for MinIO and similar servers.
func NewS3Archiver(ctx context.Context, cfg *config.Config) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return NewArchiver(PresignTarget{Objects: client, Presign: s3.NewPresignClient(client)}, cfg.S3Bucket, cfg.ArchivePresignTTL), nil
}

func NewArchiver(t PresignTarget, bucket string, ttl time.Duration) *S3Archiver {
	return &S3Archiver{target: t, bucket: bucket, ttl: ttl, now: time.Now}
}

// Archive uploads locs as a JSON document and presigns a GET for it.
func (a *S3Archiver) Archive(ctx context.Context, username string, locs []models.Location) (*Result, error) {
	body, err := json.Marshal(document(username, locs))
	if err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}

	now := a.now()
	key := storageKey(username, now)

	_, err = a.target.Objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put %s: %w", key, err)
	}

	req, err := a.target.Presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.ttl))
	if err != nil {
		return nil, fmt.Errorf("s3 presign %s: %w", key, err)
	}

	return &Result{Key: key, Count: len(locs), URL: req.URL, ExpiresAt: now.Add(a.ttl)}, nil
}

func document(username string, locs []models.Location) api.HistoryResponse {
	out := api.HistoryResponse{Username: username, Locations: make([]api.Location, 0, len(locs))}
	for _, l := range locs {
		out.Locations = append(out.Locations, api.Location{
			ID:        l.ID,
			Username:  l.Username,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
			Timestamp: l.CapturedAt,
			Accuracy:  l.Accuracy,
		})
	}
	return out
}

func storageKey(username string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("archives/%s/%04d/%02d/%02d/%s.json",
		url.PathEscape(username), t.Year(), t.Month(), t.Day(), uuid.NewString())
}
