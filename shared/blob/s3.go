package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config selects the region and, for S3-compatible stores, the endpoint.
type S3Config struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// S3Store talks to Amazon S3 or an S3-compatible endpoint.
type S3Store struct {
	client *s3.Client
}

var _ Store = (*S3Store)(nil)

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{client: client}, nil
}

func (s *S3Store) location(uri string) (Location, error) {
	loc, err := Parse(uri)
	if err != nil {
		return Location{}, err
	}
	if loc.Scheme != SchemeS3 {
		return Location{}, fmt.Errorf("s3 store cannot address %q", uri)
	}
	return loc, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	loc, err := s.location(prefix)
	if err != nil {
		return nil, err
	}

	var uris []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(loc.Bucket),
		Prefix: aws.String(loc.Key),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			uris = append(uris, Location{Scheme: SchemeS3, Bucket: loc.Bucket, Key: aws.ToString(obj.Key)}.String())
		}
	}

	sort.Strings(uris)
	return uris, nil
}

func (s *S3Store) Get(ctx context.Context, uri string) ([]byte, error) {
	loc, err := s.location(uri)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, fmt.Errorf("failed to get %s: %w", uri, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, uri string, data []byte) error {
	loc, err := s.location(uri)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(loc.Bucket),
		Key:           aws.String(loc.Key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", uri, err)
	}
	return nil
}
