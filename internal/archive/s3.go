package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"Kakofonix/astrec/internal/logger"
)

// S3Config locates the bucket recordings are uploaded to.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseTLS    bool
	// Region skips the bucket location lookup when set.
	Region string
}

// S3Uploader uploads recordings to S3 compatible storage such as MinIO.
type S3Uploader struct {
	client *minio.Client
	bucket string
	log    *logger.Logger
}

// NewS3Uploader connects to the endpoint and creates the bucket if needed.
func NewS3Uploader(ctx context.Context, cfg S3Config, log *logger.Logger) (*S3Uploader, error) {
	if log == nil {
		log = logger.Discard()
	}
	log.Info("[archive] Connecting to object storage: %s, bucket: %s", cfg.Endpoint, cfg.Bucket)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage client: %w", err)
	}

	u := &S3Uploader{client: client, bucket: cfg.Bucket, log: log}
	if err := u.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *S3Uploader) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		u.log.Info("[archive] Creating bucket: %s", u.bucket)
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Upload stores localPath under key.
func (u *S3Uploader) Upload(ctx context.Context, key, localPath string) error {
	contentType := "application/octet-stream"
	if strings.HasSuffix(localPath, ".json") {
		contentType = "application/json"
	}
	_, err := u.client.FPutObject(ctx, u.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
