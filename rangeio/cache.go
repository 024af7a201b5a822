package rangeio

import (
	"bytes"
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultCachePageSize is the default page size for Cached readers.
	DefaultCachePageSize = int64(128 * 1024)

	// DefaultCachePages is the default number of pages a Cached reader retains.
	DefaultCachePages = 64
)

// Cached wraps another Reader with an LRU page cache.
//
// Header parsing reads the same neighbourhoods repeatedly (end of central directory, central
// directory file headers, local file headers); for high-latency sources such as S3 a small page
// cache collapses those into a handful of ranged requests. Large sequential reads bypass the
// cache so file data does not evict header pages.
type Cached struct {
	r        Reader
	size     int64
	pageSize int64
	pages    *lru.Cache[int64, []byte]
}

var _ Reader = &Cached{}
var _ io.ReaderAt = &Cached{}

// CacheOptions customises NewCached.
type CacheOptions struct {
	// PageSize is the size in bytes of each cached page. Default to DefaultCachePageSize.
	PageSize int64

	// Pages is the number of pages retained. Default to DefaultCachePages.
	Pages int
}

// NewCached wraps r, whose total size must be known, with a page cache.
func NewCached(r Reader, size int64, optFns ...func(*CacheOptions)) (*Cached, error) {
	opts := CacheOptions{PageSize: DefaultCachePageSize, Pages: DefaultCachePages}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.PageSize <= 0 {
		return nil, fmt.Errorf("pageSize (%d) must be a positive integer", opts.PageSize)
	}
	if opts.Pages <= 0 {
		return nil, fmt.Errorf("pages (%d) must be a positive integer", opts.Pages)
	}

	pages, err := lru.New[int64, []byte](opts.Pages)
	if err != nil {
		return nil, err
	}

	return &Cached{r: r, size: size, pageSize: opts.PageSize, pages: pages}, nil
}

func (c *Cached) OpenRange(off, n int64) (io.ReadCloser, error) {
	// ranges larger than a page are expected to be file data; stream them straight through.
	if n > c.pageSize {
		return c.r.OpenRange(off, n)
	}
	if n == 0 {
		return emptyStream{}, nil
	}

	p := make([]byte, n)
	if err := c.readCached(p, off); err != nil {
		return nil, err
	}

	return io.NopCloser(bytes.NewReader(p)), nil
}

func (c *Cached) ReadAt(p []byte, off int64) (int, error) {
	if int64(len(p)) > c.pageSize {
		if err := ReadFull(c.r, p, off); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	if err := c.readCached(p, off); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *Cached) readCached(p []byte, off int64) error {
	for len(p) > 0 {
		pageIndex := off / c.pageSize
		pageOff := off % c.pageSize

		page, ok := c.pages.Get(pageIndex)
		if !ok {
			pageStart := pageIndex * c.pageSize
			pageLen := min(c.pageSize, c.size-pageStart)
			if pageLen <= pageOff {
				return fmt.Errorf("%w: read at offset %d beyond size %d", ErrUnexpectedEOF, off, c.size)
			}

			page = make([]byte, pageLen)
			if err := ReadFull(c.r, page, pageStart); err != nil {
				return err
			}
			c.pages.Add(pageIndex, page)
		}

		n := copy(p, page[pageOff:])
		if n == 0 {
			return fmt.Errorf("%w: read at offset %d beyond size %d", ErrUnexpectedEOF, off, c.size)
		}
		p, off = p[n:], off+int64(n)
	}

	return nil
}

func (c *Cached) Open() error {
	return c.r.Open()
}

func (c *Cached) Close() error {
	c.pages.Purge()
	return c.r.Close()
}

func (c *Cached) IsOpen() bool {
	return c.r.IsOpen()
}
