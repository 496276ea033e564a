// Package storage issues presigned S3 URLs for request documents.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bgbm/dnastore/internal/config"
)

const defaultPresignExpiry = 15 * time.Minute

// PresignedURL is a time-limited URL granting one object operation.
type PresignedURL struct {
	URL       string      `json:"url"`
	Method    string      `json:"method"`
	ExpiresAt time.Time   `json:"expires_at"`
	Headers   http.Header `json:"headers,omitempty"`
}

// DocumentStore presigns uploads and downloads by object key.
type DocumentStore interface {
	PresignUpload(ctx context.Context, key, contentType string) (*PresignedURL, error)
	PresignDownload(ctx context.Context, key string) (*PresignedURL, error)
}

// Presigner implements DocumentStore against an S3-compatible bucket.
type Presigner struct {
	client *s3.PresignClient
	bucket string
	expiry time.Duration
	now    func() time.Time
}

// NewPresigner builds a presigner from storage configuration.
func NewPresigner(ctx context.Context, cfg config.StorageConfig) (*Presigner, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("storage: bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, errLoad := awsconfig.LoadDefaultConfig(ctx, opts...)
	if errLoad != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", errLoad)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &Presigner{
		client: s3.NewPresignClient(client),
		bucket: bucket,
		expiry: expiry,
		now:    time.Now,
	}, nil
}

// PresignUpload returns a PUT URL for key.
func (p *Presigner) PresignUpload(ctx context.Context, key, contentType string) (*PresignedURL, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	issued := p.now().UTC()
	req, errPresign := p.client.PresignPutObject(ctx, in, s3.WithPresignExpires(p.expiry))
	if errPresign != nil {
		return nil, fmt.Errorf("storage: presign put %s: %w", key, errPresign)
	}
	return p.result(req, issued), nil
}

// PresignDownload returns a GET URL for key.
func (p *Presigner) PresignDownload(ctx context.Context, key string) (*PresignedURL, error) {
	issued := p.now().UTC()
	req, errPresign := p.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expiry))
	if errPresign != nil {
		return nil, fmt.Errorf("storage: presign get %s: %w", key, errPresign)
	}
	return p.result(req, issued), nil
}

func (p *Presigner) result(req *v4.PresignedHTTPRequest, issued time.Time) *PresignedURL {
	headers := req.SignedHeader.Clone()
	headers.Del("Host")
	if len(headers) == 0 {
		headers = nil
	}
	return &PresignedURL{
		URL:       req.URL,
		Method:    req.Method,
		ExpiresAt: issued.Add(p.expiry),
		Headers:   headers,
	}
}
