// Package cli implements the lazyzip command-line commands.
package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nguyengg/lazyzip"
	"github.com/nguyengg/lazyzip/rangeio"
)

// NewLogger creates the logger all commands write progress lines to.
func NewLogger(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, 0)
}

// OpenArchive opens a local path or an "s3://bucket/key" URI as an archive.
func OpenArchive(ctx context.Context, name string, optFns ...func(*lazyzip.Options)) (*lazyzip.Archive, error) {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(name, "s3://"), "/")
	if !ok || !strings.HasPrefix(name, "s3://") {
		return lazyzip.Open(name, optFns...)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config error: %w", err)
	}

	r, err := rangeio.NewS3(ctx, s3.NewFromConfig(cfg), &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf(`open "%s" error: %w`, name, err)
	}

	// header parsing re-reads small neighbourhoods; cache them so listing a remote
	// archive does not make one GetObject per entry.
	cached, err := rangeio.NewCached(r, r.Size())
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	return lazyzip.FromReader(cached, r.Size(), optFns...)
}
