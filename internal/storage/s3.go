package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
)

// S3Config describes the bucket outputs are published to.
type S3Config struct {
	Bucket string
	Region string
	// Prefix is prepended to every object key, e.g. "outputs/".
	Prefix string
	// Endpoint selects an S3-compatible service and path-style addressing.
	Endpoint string
	// Static credentials; when empty the default AWS chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Publisher uploads finished outputs to S3.
type S3Publisher struct {
	client *s3.Client
	cfg    S3Config
}

var _ Publisher = (*S3Publisher)(nil)

// NewS3Publisher loads AWS configuration for cfg.Region and builds the client.
func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrS3NotConfigured
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(creds))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Publisher{client: client, cfg: cfg}, nil
}

// Publish uploads the file at localPath under the configured prefix and
// returns the object URL. The content type is sniffed from the file.
func (p *S3Publisher) Publish(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath) // #nosec G304 -- produced by the pipeline
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer func() { _ = f.Close() }()

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(localPath); err == nil {
		contentType = mt.String()
	}

	objectKey := p.cfg.Prefix + key
	if _, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(objectKey),
		Body:        f,
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", p.cfg.Bucket, objectKey, err)
	}
	return p.objectURL(objectKey), nil
}

// objectURL uses path-style URLs for custom endpoints and virtual-hosted
// AWS URLs otherwise.
func (p *S3Publisher) objectURL(key string) string {
	if p.cfg.Endpoint != "" {
		u, err := url.Parse(strings.TrimSuffix(p.cfg.Endpoint, "/"))
		if err == nil {
			u.Path = path.Join(u.Path, p.cfg.Bucket, key)
			return u.String()
		}
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.cfg.Bucket, p.cfg.Region, key)
}
