package taxonomy

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Fetcher pulls the taxonomy document from an S3 bucket/key. It is the
// fallback source when the bundled copy is unreadable.
type S3Fetcher struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Fetcher builds a fetcher from the default AWS credential chain.
func NewS3Fetcher(ctx context.Context, region, bucket, key string) (*S3Fetcher, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("taxonomy bucket and key must both be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &S3Fetcher{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		key:    key,
	}, nil
}

// Fetch implements RemoteFetcher.
func (f *S3Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key),
	})
	if err != nil {
		return nil, fmt.Errorf("get taxonomy object s3://%s/%s: %w", f.bucket, f.key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy object body: %w", err)
	}
	return raw, nil
}
