// Package fetch downloads datasets stored in S3-compatible object storage.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const scheme = "s3://"

// Environment variables read by ConfigFromEnv. Credentials fall back to the
// default AWS chain when the static key pair is unset.
const (
	EnvRegion    = "ROBODATA_S3_REGION"
	EnvEndpoint  = "ROBODATA_S3_ENDPOINT"
	EnvPathStyle = "ROBODATA_S3_PATH_STYLE"
)

// Location is a parsed s3://bucket/key reference.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string { return scheme + l.Bucket + "/" + l.Key }

// IsRemote reports whether loc names an object rather than a local file.
func IsRemote(loc string) bool {
	return strings.HasPrefix(loc, scheme)
}

// Parse splits an s3:// reference into bucket and key.
func Parse(loc string) (Location, error) {
	if !IsRemote(loc) {
		return Location{}, fmt.Errorf("%q is not an s3:// location", loc)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(loc, scheme), "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, fmt.Errorf("%q: want s3://bucket/key", loc)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// Config holds client construction parameters.
type Config struct {
	Region          string
	Endpoint        string // optional, e.g. a MinIO URL
	AccessKeyID     string // optional
	SecretAccessKey string // optional
	PathStyle       bool
	Transport       http.RoundTripper // optional, used by tests
}

// ConfigFromEnv reads the ROBODATA_S3_* variables.
func ConfigFromEnv() Config {
	return Config{
		Region:          os.Getenv(EnvRegion),
		Endpoint:        os.Getenv(EnvEndpoint),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		PathStyle:       strings.EqualFold(os.Getenv(EnvPathStyle), "true"),
	}
}

// NewClient builds an S3 client from cfg.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.Transport != nil {
			o.HTTPClient = &http.Client{Transport: cfg.Transport}
		}
	}), nil
}

// Getter is the part of the S3 API used for downloads. *s3.Client satisfies it.
type Getter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher downloads objects into temporary files.
type Fetcher struct {
	client Getter
	dir    string
}

// New returns a Fetcher writing into the default temp directory.
func New(client Getter) *Fetcher {
	return &Fetcher{client: client}
}

// Download copies the object to a temp file whose name ends in the object's
// base name. The caller removes the file.
func (f *Fetcher) Download(ctx context.Context, loc Location) (string, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return "", fmt.Errorf("get %s: %w", loc, err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp(f.dir, "robodata-*-"+path.Base(loc.Key))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download %s: %w", loc, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// Resolve returns a local path for loc. Remote locations are downloaded using
// a client built from the environment; cleanup removes the download and is a
// no-op for local paths.
func Resolve(ctx context.Context, loc string) (string, func(), error) {
	if !IsRemote(loc) {
		return loc, func() {}, nil
	}
	client, err := NewClient(ctx, ConfigFromEnv())
	if err != nil {
		return "", nil, err
	}
	return New(client).Resolve(ctx, loc)
}

// Resolve is like the package-level Resolve but uses f's client.
func (f *Fetcher) Resolve(ctx context.Context, loc string) (string, func(), error) {
	if !IsRemote(loc) {
		return loc, func() {}, nil
	}
	l, err := Parse(loc)
	if err != nil {
		return "", nil, err
	}
	p, err := f.Download(ctx, l)
	if err != nil {
		return "", nil, err
	}
	return p, func() { os.Remove(p) }, nil
}
