// Package config resolves credentials and builds object-store clients for
// each side of a transfer. Source and destination carry independent
// credentials so a run can hop between accounts and providers.
package config

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Credentials identifies one endpoint: a named shared profile, explicit
// static keys, or the default chain when both are empty. EndpointURL
// points at S3-compatible services (MinIO, Wasabi, ...), which also get
// path-style addressing.
type Credentials struct {
	Profile         string `json:"profile,omitempty" yaml:"profile"`
	AccessKeyID     string `json:"access_key,omitempty" yaml:"access_key"`
	SecretAccessKey string `json:"secret_key,omitempty" yaml:"secret_key"`
	SessionToken    string `json:"session_token,omitempty" yaml:"session_token"`
	Region          string `json:"region,omitempty" yaml:"region"`
	EndpointURL     string `json:"endpoint_url,omitempty" yaml:"endpoint_url"`
}

// Load resolves these credentials into an AWS config. Priority: explicit
// static keys, then named profile, then the SDK default chain
// (environment, shared files, IAM role).
func (c *Credentials) Load(ctx context.Context) (aws.Config, error) {
	region := c.Region
	if region == "" {
		// The SDK needs a region for signing even when an S3-compatible
		// endpoint ignores it.
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(3),
	}

	switch {
	case c.AccessKeyID != "" && c.SecretAccessKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	case c.Profile != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}

	if c.EndpointURL != "" {
		// Custom endpoints get a client that does not follow redirects;
		// some S3-compatible services answer with 301s that the SDK
		// would otherwise chase into signature failures.
		opts = append(opts, awsconfig.WithHTTPClient(&http.Client{
			Timeout: 5 * time.Minute,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load credentials: %w", err)
	}
	return cfg, nil
}

// NewS3Client builds an S3 client for these credentials. Custom endpoints
// force path-style addressing, which most non-AWS providers require.
func NewS3Client(ctx context.Context, creds *Credentials) (*s3.Client, error) {
	if creds == nil {
		creds = &Credentials{}
	}

	cfg, err := creds.Load(ctx)
	if err != nil {
		return nil, err
	}

	endpointURL := creds.EndpointURL
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		}
	})
	return client, nil
}
