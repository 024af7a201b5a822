package rangeio

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nguyengg/lazyzip/internal/executor"
	"golang.org/x/time/rate"
)

const (
	// DefaultS3Threshold is the minimum ReadAt length before parallel GetObject kicks in.
	//
	// S3's [Recommendation] is 8MB-16MB per ranged request.
	//
	// [Recommendation]: https://docs.aws.amazon.com/whitepapers/latest/s3-optimizing-performance-best-practices/use-byte-range-fetches.html
	DefaultS3Threshold = int64(5 * 1024 * 1024)

	// DefaultS3Concurrency is the default value for S3Options.Concurrency.
	DefaultS3Concurrency = 3

	// DefaultS3PartSize is the size of each parallel ranged GetObject.
	DefaultS3PartSize = int64(5 * 1024 * 1024)
)

// GetObjectClient abstracts the S3 API needed to serve range streams.
type GetObjectClient interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// GetAndHeadObjectClient additionally allows NewS3 to determine the object size.
type GetAndHeadObjectClient interface {
	GetObjectClient
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Options customises the S3 reader.
type S3Options struct {
	// Threshold is the minimum ReadAt length before parallel GetObject is used.
	//
	// Default to DefaultS3Threshold. Must be a positive integer.
	Threshold int64

	// Concurrency controls the goroutine pool supporting parallel GetObject.
	//
	// Default to DefaultS3Concurrency. Must be a positive integer; set to 1 to disable
	// parallel fetches.
	Concurrency int

	// PartSize is the size of each parallel GetObject.
	//
	// Default to DefaultS3PartSize. Must be a positive integer; unused if Concurrency is 1.
	PartSize int64

	// MaxBytesInSecond limits the number of bytes downloaded in one second.
	//
	// The zero-value indicates no limit. Must be a non-negative integer otherwise.
	MaxBytesInSecond int64
}

// S3 is a Reader over an S3 object using ranged GetObject.
//
// Range streams are served by a single GetObject each so that backpressure propagates to the
// HTTP response body. ReadAt calls above S3Options.Threshold are fanned out over parallel
// ranged GetObject calls instead.
type S3 struct {
	tracker
	ctx     context.Context
	client  GetObjectClient
	input   s3.GetObjectInput
	size    int64
	opts    S3Options
	ex      executor.ExecuteCloser
	limiter *rate.Limiter
}

var _ Reader = &S3{}
var _ io.ReaderAt = &S3{}

// NewS3 returns an S3 reader, calling HeadObject with identical input parameters to determine
// the object size. Use NewS3WithSize if the size is already known.
//
// The given context is used for all subsequent S3 calls.
func NewS3(ctx context.Context, client GetAndHeadObjectClient, input *s3.GetObjectInput, optFns ...func(*S3Options)) (*S3, error) {
	headObjectOutput, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:              input.Bucket,
		Key:                 input.Key,
		ExpectedBucketOwner: input.ExpectedBucketOwner,
		IfMatch:             input.IfMatch,
		RequestPayer:        input.RequestPayer,
		VersionId:           input.VersionId,
	})
	if err != nil {
		return nil, fmt.Errorf("determine object size error: %w", err)
	}

	return NewS3WithSize(ctx, client, input, aws.ToInt64(headObjectOutput.ContentLength), optFns...)
}

// NewS3WithSize returns an S3 reader over an object of known size.
//
// NewS3WithSize only returns a non-nil error on invalid options.
func NewS3WithSize(ctx context.Context, client GetObjectClient, input *s3.GetObjectInput, size int64, optFns ...func(*S3Options)) (*S3, error) {
	opts := S3Options{
		Threshold:   DefaultS3Threshold,
		Concurrency: DefaultS3Concurrency,
		PartSize:    DefaultS3PartSize,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Threshold <= 0 {
		return nil, fmt.Errorf("threshold (%d) must be a positive integer", opts.Threshold)
	}
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency (%d) must be a positive integer", opts.Concurrency)
	}
	if opts.PartSize <= 0 && opts.Concurrency != 1 {
		return nil, fmt.Errorf("partSize (%d) must be a positive integer", opts.PartSize)
	}

	var limiter *rate.Limiter
	switch {
	case opts.MaxBytesInSecond < 0:
		return nil, fmt.Errorf("maxBytesInSecond (%d) must be a non-negative integer", opts.MaxBytesInSecond)
	case opts.MaxBytesInSecond == 0:
		limiter = rate.NewLimiter(rate.Inf, 0)
	default:
		limiter = rate.NewLimiter(rate.Limit(opts.MaxBytesInSecond), int(max(opts.PartSize, 1)))
	}

	return &S3{
		ctx:     ctx,
		client:  client,
		input:   *input,
		size:    size,
		opts:    opts,
		ex:      executor.NewCallerRunsOnFullExecutor(opts.Concurrency - 1),
		limiter: limiter,
	}, nil
}

// Size returns the object size determined at construction.
func (r *S3) Size() int64 {
	return r.size
}

func (r *S3) OpenRange(off, n int64) (io.ReadCloser, error) {
	if n == 0 {
		return emptyStream{}, nil
	}
	if off < 0 || off+n > r.size {
		return nil, fmt.Errorf("%w: range [%d, %d) outside object of size %d", ErrUnexpectedEOF, off, off+n, r.size)
	}
	if err := r.begin(); err != nil {
		return nil, err
	}

	getObjectOutput, err := r.client.GetObject(r.ctx, copyInput(r.input, off, off+n-1))
	if err != nil {
		r.end()
		return nil, fmt.Errorf("ranged GetObject error: %w", err)
	}

	return newTrackedStream(&r.tracker, &limitedBody{rc: getObjectOutput.Body, ctx: r.ctx, limiter: r.limiter}, n), nil
}

func (r *S3) ReadAt(p []byte, off int64) (int, error) {
	m := int64(len(p))
	if m == 0 {
		return 0, nil
	}
	if off >= r.size {
		return 0, io.EOF
	}
	short := off+m > r.size
	if short {
		p, m = p[:r.size-off], r.size-off
	}

	if m < r.opts.Threshold || r.opts.Concurrency == 1 {
		return r.readOne(p, off)
	}

	// fan the range out over the goroutine pool, each part writing into its own sub-slice.
	partSize := r.opts.PartSize
	partCount := int(math.Ceil(float64(m) / float64(partSize)))

	var wg sync.WaitGroup
	wg.Add(partCount)

	ctx, cancel := context.WithCancelCause(r.ctx)
	defer cancel(nil)

	for partNumber := range partCount {
		start := int64(partNumber) * partSize
		end := min(start+partSize, m)

		if err := r.ex.Execute(func() {
			defer wg.Done()

			if _, err := r.readOne(p[start:end], off+start); err != nil {
				cancel(err)
			}
		}); err != nil {
			cancel(err)
			wg.Done()
		}
	}

	wg.Wait()

	if err := context.Cause(ctx); err != nil && err != context.Canceled {
		return 0, err
	}
	if short {
		return int(m), io.EOF
	}
	return int(m), nil
}

// readOne fills p with exactly one ranged GetObject.
func (r *S3) readOne(p []byte, off int64) (int, error) {
	if err := r.limiter.WaitN(r.ctx, len(p)); err != nil {
		return 0, err
	}

	getObjectOutput, err := r.client.GetObject(r.ctx, copyInput(r.input, off, off+int64(len(p))-1))
	if err != nil {
		return 0, fmt.Errorf("ranged GetObject error: %w", err)
	}

	n, err := io.ReadFull(getObjectOutput.Body, p)
	_ = getObjectOutput.Body.Close()
	return n, err
}

func (r *S3) Open() error {
	r.reopen()
	return nil
}

func (r *S3) Close() error {
	return r.close(r.ex.Close)
}

// limitedBody applies the byte-rate limiter to a response body as it is pulled.
type limitedBody struct {
	rc      io.ReadCloser
	ctx     context.Context
	limiter *rate.Limiter
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		if werr := b.limiter.WaitN(b.ctx, n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

func (b *limitedBody) Close() error {
	return b.rc.Close()
}

func copyInput(src s3.GetObjectInput, rangeStart, rangeEnd int64) *s3.GetObjectInput {
	input := src
	input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", rangeStart, rangeEnd))
	return &input
}
