package fetcher

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithy "github.com/aws/smithy-go"
	"github.com/gowthamrao/eurostat-elt/pkg/log"
)

// S3Mirror is the optional object-storage cache tier: a Get miss is not an
// error, and a Put failure never fails the fetch that triggered it — the
// mirror is purely a cache-sharing optimization, never the system of record.
type S3Mirror struct {
	client *s3.Client
	bucket string
}

// NewS3Mirror builds a mirror against bucket using ambient AWS credentials
// (environment, shared config, or instance role), matching the loading
// pattern used elsewhere in the corpus for S3-backed archive storage.
func NewS3Mirror(ctx context.Context, bucket string) (*S3Mirror, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &S3Mirror{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (m *S3Mirror) Get(ctx context.Context, key string, w io.Writer) (bool, error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return false, err
	}
	return true, nil
}

func (m *S3Mirror) Put(ctx context.Context, key string, localPath string) {
	f, err := os.Open(localPath)
	if err != nil {
		log.Warnf("s3mirror: cannot open %s for upload: %v", localPath, err)
		return
	}
	defer f.Close()

	if _, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		log.Warnf("s3mirror: best-effort upload of %s failed: %v", key, err)
	}
}
