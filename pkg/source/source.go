// Package source opens load inputs: local files and s3:// objects, gzip-compressed or not.
package source

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/ReddyLab/cegs-portal-sub001/internal/util"
	"github.com/ReddyLab/cegs-portal-sub001/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrBadLocation = errors.New("bad input location")

// S3Config configures the S3 client. Empty credentials fall back to the default AWS chain.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
	// HTTPClient replaces the SDK transport, for tests.
	HTTPClient s3.HTTPClient
}

// Opener resolves input locations. The S3 client is built on first use.
type Opener struct {
	cfg S3Config

	once      sync.Once
	client    *s3.Client
	clientErr error
}

func NewOpener(cfg S3Config) *Opener {
	return &Opener{cfg: cfg}
}

// Open returns a reader over the decompressed contents of location, which is either a local
// path or an s3://bucket/key URL. Gzip input is detected by suffix or by its magic bytes.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	if strings.HasPrefix(location, "s3://") {
		rc, err = o.openS3(ctx, location)
	} else {
		rc, err = openLocal(location)
	}
	if err != nil {
		return nil, err
	}
	return maybeGunzip(rc, util.IsGzip(location))
}

func openLocal(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !util.FileExists(path) {
		_ = f.Close()
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	return f, nil
}

func (o *Opener) openS3(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URL(location)
	if err != nil {
		return nil, err
	}
	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	logger.Debug("Opened S3 object", zap.String("bucket", bucket), zap.String("key", key), zap.Int64("size", size))
	return out.Body, nil
}

func (o *Opener) s3Client(ctx context.Context) (*s3.Client, error) {
	o.once.Do(func() {
		region := o.cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
		if o.cfg.AccessKeyID != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(o.cfg.AccessKeyID, o.cfg.SecretAccessKey, "")))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			o.clientErr = fmt.Errorf("load aws config: %w", err)
			return
		}
		o.client = s3.NewFromConfig(awsCfg, func(opts *s3.Options) {
			opts.UsePathStyle = o.cfg.PathStyle
			if o.cfg.Endpoint != "" {
				opts.BaseEndpoint = aws.String(o.cfg.Endpoint)
			}
			if o.cfg.HTTPClient != nil {
				opts.HTTPClient = o.cfg.HTTPClient
			}
		})
	})
	return o.client, o.clientErr
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrBadLocation, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q is not an s3://bucket/key url", ErrBadLocation, location)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: %q has no object key", ErrBadLocation, location)
	}
	return u.Host, key, nil
}

var gzipMagic = []byte{0x1f, 0x8b}

type gzipReadCloser struct {
	*gzip.Reader
	under io.Closer
}

func (g *gzipReadCloser) Close() error {
	return multierr.Append(g.Reader.Close(), g.under.Close())
}

type bufferedReadCloser struct {
	*bufio.Reader
	io.Closer
}

func maybeGunzip(rc io.ReadCloser, byName bool) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	head, _ := br.Peek(len(gzipMagic))
	if !byName && string(head) != string(gzipMagic) {
		return &bufferedReadCloser{Reader: br, Closer: rc}, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	return &gzipReadCloser{Reader: zr, under: rc}, nil
}
