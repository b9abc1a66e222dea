package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/offpay/internal/logging"
	sc "github.com/dmitrijs2005/offpay/internal/server/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) error {
		_, err := c.PutObject(ctx, in)
		return err
	}
)

// AuditArchive uploads reconciliation reports to S3-compatible storage.
type AuditArchive struct {
	client *s3.Client
	bucket string
	logger logging.Logger
}

// NewAuditArchive returns nil when no bucket is configured; a nil archive
// accepts and drops every report.
func NewAuditArchive(ctx context.Context, cfg *sc.Config, l logging.Logger) (*AuditArchive, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("error loading s3 config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &AuditArchive{client: client, bucket: cfg.S3Bucket, logger: moduleLogger(l, "audit")}, nil
}

// ArchiveKey is the object key of a report: reconciliations/yyyy/mm/dd/sender/batch.json.
func ArchiveKey(r *ReconcileReport) string {
	d := r.ReconciledAt.UTC()
	return fmt.Sprintf("reconciliations/%04d/%02d/%02d/%s/%s.json", d.Year(), d.Month(), d.Day(), r.SenderID, r.BatchID)
}

func (a *AuditArchive) Archive(ctx context.Context, r *ReconcileReport) error {
	if a == nil {
		return nil
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("error encoding report: %w", err)
	}

	key := ArchiveKey(r)
	err = putObject(a.client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("error uploading report: %w", err)
	}

	a.logger.Debug(ctx, "reconciliation report archived", "key", key)
	return nil
}
