package source

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
)

// DefaultS3Region applies when S3Config.Region is empty.
const DefaultS3Region = "us-east-1"

// S3Config configures an S3Source. Empty credentials fall back to the
// default AWS credential chain.
type S3Config struct {
	Region          string
	Endpoint        string // custom endpoint, e.g. MinIO
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool

	// HTTPClient replaces the SDK's transport.
	HTTPClient *http.Client
	// MaxBytes caps the object size. Zero selects DefaultMaxBytes.
	MaxBytes int64
}

// S3Source reads objects addressed as s3://bucket/key.
type S3Source struct {
	client   *s3.Client
	maxBytes int64
}

// NewS3Source loads the AWS configuration and creates a client.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	region := cfg.Region
	if region == "" {
		region = DefaultS3Region
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidInput, err, "load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	return &S3Source{client: client, maxBytes: limitOr(cfg.MaxBytes)}, nil
}

func (*S3Source) Supports(ref string) bool {
	return Scheme(ref) == "s3"
}

// Fetch downloads the object named by ref.
func (s *S3Source) Fetch(ctx context.Context, ref string) (*Blob, error) {
	bucket, key, err := ParseS3(ref)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		var nsk *types.NoSuchKey
		var nsb *types.NoSuchBucket
		switch {
		case errors.As(err, &nsk), errors.As(err, &nsb):
			return nil, perrors.Wrap(perrors.ErrCodeNotFound, err, "fetch %s", ref)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, perrors.Wrap(perrors.ErrCodeTimeout, err, "fetch %s", ref)
		case errors.Is(err, context.Canceled):
			return nil, err
		}
		return nil, perrors.Wrap(perrors.ErrCodeNetwork, err, "fetch %s", ref)
	}
	defer out.Body.Close()

	data, err := readLimited(out.Body, s.maxBytes, ref)
	if err != nil {
		return nil, wrapf(perrors.ErrCodeNetwork, err, "read %s", ref)
	}
	return &Blob{Name: baseName(key), Ref: ref, Data: data}, nil
}

// ParseS3 splits s3://bucket/key into its bucket and key.
func ParseS3(ref string) (bucket, key string, err error) {
	if Scheme(ref) != "s3" {
		return "", "", perrors.New(perrors.ErrCodeInvalidInput, "not an s3 reference: %s", ref)
	}
	rest := ref[len("s3://"):]
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", perrors.New(perrors.ErrCodeInvalidInput, "s3 reference needs bucket and key: %s", ref)
	}
	return bucket, key, nil
}

var _ Source = (*S3Source)(nil)
