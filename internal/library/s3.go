package library

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Mirror copies saved assets to remote storage
type Mirror interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// S3Options configures the S3 mirror
type S3Options struct {
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Mirror uploads assets with the multipart upload manager
type S3Mirror struct {
	uploader *manager.Uploader
	opts     S3Options
}

// NewS3Mirror creates the mirror using credentials from opts or the environment
// (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY), falling back to the default chain.
func NewS3Mirror(ctx context.Context, opts S3Options) (*S3Mirror, error) {
	accessKey := opts.AccessKeyID
	secretKey := opts.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
		slog.Debug("S3 mirror using static credentials", "region", opts.Region, "bucket", opts.Bucket)
	} else {
		slog.Warn("S3 mirror using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 8 * 1024 * 1024
	})

	return &S3Mirror{uploader: uploader, opts: opts}, nil
}

// Key returns the object key for a file in an album: <prefix>/<album>/<filename>
func (m *S3Mirror) Key(album, filename string) string {
	return path.Join(strings.Trim(m.opts.Prefix, "/"), album, path.Base(filename))
}

// Upload streams localPath to the bucket and returns the object URL
func (m *S3Mirror) Upload(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.opts.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(localPath)),
	})
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", m.opts.Bucket, m.opts.Region, key), nil
}

func contentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	}
	return "application/octet-stream"
}
