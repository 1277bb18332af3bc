package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const elements = "chrom\tstart\tend\nchr1\t10\t20\n"

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readAll(t *testing.T, o *Opener, location string) string {
	t.Helper()
	rc, err := o.Open(context.Background(), location)
	require.NoError(t, err)
	defer func() { require.NoError(t, rc.Close()) }()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestOpenLocal(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "elements.tsv")
	packed := filepath.Join(dir, "elements.tsv.gz")
	sniffed := filepath.Join(dir, "elements.bin")
	require.NoError(t, os.WriteFile(plain, []byte(elements), 0o644))
	require.NoError(t, os.WriteFile(packed, gz(t, elements), 0o644))
	require.NoError(t, os.WriteFile(sniffed, gz(t, elements), 0o644))

	o := NewOpener(S3Config{})
	assert.Equal(t, elements, readAll(t, o, plain))
	assert.Equal(t, elements, readAll(t, o, packed))
	assert.Equal(t, elements, readAll(t, o, sniffed))
}

func TestOpenBadGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.tsv.gz")
	require.NoError(t, os.WriteFile(path, []byte(elements), 0o644))

	_, err := NewOpener(S3Config{}).Open(context.Background(), path)
	assert.Error(t, err)
}

func TestOpenMissing(t *testing.T) {
	_, err := NewOpener(S3Config{}).Open(context.Background(), filepath.Join(t.TempDir(), "nope.tsv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		in          string
		bucket, key string
		ok          bool
	}{
		{"s3://data/loads/elements.tsv", "data", "loads/elements.tsv", true},
		{"s3://data/x.csv.gz", "data", "x.csv.gz", true},
		{"s3://data/", "", "", false},
		{"s3:///key", "", "", false},
		{"https://data/key", "", "", false},
	}
	for _, tt := range tests {
		bucket, key, err := ParseS3URL(tt.in)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrBadLocation, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.bucket, bucket)
		assert.Equal(t, tt.key, key)
	}
}

// fakeS3 serves path-style GetObject requests from a map of "bucket/key" to body.
type fakeS3 struct {
	objects  map[string][]byte
	requests []string
}

func (f *fakeS3) Do(req *http.Request) (*http.Response, error) {
	path := req.URL.Path[1:]
	f.requests = append(f.requests, req.Method+" "+path)
	body, ok := f.objects[path]
	if !ok || req.Method != http.MethodGet {
		msg := `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Header:     http.Header{"Content-Type": []string{"application/xml"}},
			Body:       io.NopCloser(bytes.NewBufferString(msg)),
			Request:    req,
		}, nil
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Header:        http.Header{"Content-Length": []string{strconv.Itoa(len(body))}},
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
		Request:       req,
	}, nil
}

func TestOpenS3(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{
		"cegs/loads/elements.tsv":    []byte(elements),
		"cegs/loads/elements.tsv.gz": gz(t, elements),
	}}
	o := NewOpener(S3Config{
		Region:          "us-east-1",
		Endpoint:        "https://s3.test.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      fake,
	})

	assert.Equal(t, elements, readAll(t, o, "s3://cegs/loads/elements.tsv"))
	assert.Equal(t, elements, readAll(t, o, "s3://cegs/loads/elements.tsv.gz"))
	assert.Equal(t, []string{"GET cegs/loads/elements.tsv", "GET cegs/loads/elements.tsv.gz"}, fake.requests)

	_, err := o.Open(context.Background(), "s3://cegs/loads/missing.tsv")
	assert.Error(t, err)
}

func TestOpenDirectory(t *testing.T) {
	_, err := NewOpener(S3Config{}).Open(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "not a regular file")
}
