package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rohits-web03/vaultbox/internal/config"
)

// BlobMirror keeps an off-host copy of ciphertext blobs. Only ciphertext is
// ever handed to it; the IV stays in the metadata store.
type BlobMirror interface {
	Put(ctx context.Context, key, path string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// R2Mirror stores blobs in a Cloudflare R2 bucket through the S3 API.
type R2Mirror struct {
	client *s3.Client
	bucket string
}

// NewR2Mirror initializes the R2 client using static credentials and the
// account endpoint.
func NewR2Mirror(cfg config.R2Config) *R2Mirror {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	return newS3Mirror(endpoint, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.BucketName, cfg.Region)
}

func newS3Mirror(endpoint, accessKey, secretKey, bucket, region string) *R2Mirror {
	awsCfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		Region:      region,
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &R2Mirror{client: client, bucket: bucket}
}

// MirrorKey is the object key a stored blob is mirrored under.
func MirrorKey(storedName string) string {
	return "files/" + storedName
}

// Put uploads the file at path under key.
func (m *R2Mirror) Put(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/octet-stream"),
	})
	return err
}

// Exists checks if a given object key exists in the bucket.
// Returns true if the object exists, false if not, and an error if something went wrong.
func (m *R2Mirror) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NotFound
		if errors.As(err, &nsk) {
			return false, nil
		}
		// Other error (e.g. auth, network)
		return false, err
	}
	return true, nil
}

func (m *R2Mirror) Delete(ctx context.Context, key string) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	return err
}
