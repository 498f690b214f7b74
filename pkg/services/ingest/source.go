package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const (
	s3Scheme      = "s3://"
	DefaultRegion = "us-east-1"
)

// ObjectGetter is the part of the S3 client used to download sources.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds a client from the shared AWS configuration. An empty
// profile uses the default credential chain.
func NewS3Client(ctx context.Context, profile string) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithDefaultRegion(DefaultRegion)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func parseS3(uri string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(uri, s3Scheme) {
		return "", "", false
	}
	bucket, key, found := strings.Cut(strings.TrimPrefix(uri, s3Scheme), "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// localize returns a local path for source, downloading S3 objects to a
// temporary file that cleanup removes.
func (l *Loader) localize(ctx context.Context, source string) (path string, cleanup func(), err error) {
	if !strings.HasPrefix(source, s3Scheme) {
		return source, func() {}, nil
	}

	bucket, key, ok := parseS3(source)
	if !ok {
		return "", nil, fmt.Errorf("invalid S3 location %q, expected s3://bucket/key", source)
	}
	if l.objects == nil {
		return "", nil, fmt.Errorf("S3 source %q given but no S3 client is configured", source)
	}

	out, err := l.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: awssdk.String(bucket),
		Key:    awssdk.String(key),
	})
	if err != nil {
		return "", nil, fmt.Errorf("get %s: %w", source, err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp("", "atlas-ingest-*"+filepath.Ext(key))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup = func() {
		if err := os.Remove(tmp.Name()); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("path", tmp.Name()).Msg("failed to remove temp file")
		}
	}

	n, err := io.Copy(tmp, out.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("download %s: %w", source, err)
	}

	zerolog.Ctx(ctx).Debug().Str("source", source).Int64("bytes", n).Msg("downloaded source")
	return tmp.Name(), cleanup, nil
}
