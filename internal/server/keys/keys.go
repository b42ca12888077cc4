// Package keys loads the HMAC signing key used for access tokens.
//
// The secret is standard base64 and must decode to at least MinKeySize
// bytes. It comes from exactly one source: an inline value, a file, or an
// object in the S3-compatible secret bucket.
package keys

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/dmitrijs2005/gophauth/internal/server/config"
)

// MinKeySize is the shortest accepted HS256 key, in bytes.
const MinKeySize = 32

// maxSecretSize bounds what is read from a file or an S3 object.
const maxSecretSize = 64 << 10

var (
	ErrNoSecret        = errors.New("signing secret is not configured")
	ErrAmbiguousKey    = errors.New("more than one signing secret source is configured")
	ErrInvalidEncoding = errors.New("signing secret is not valid base64")
	ErrKeyTooShort     = fmt.Errorf("signing key must be at least %d bytes", MinKeySize)
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in)
	}

	readFile = os.ReadFile
)

// Key is the raw HMAC key. It is read-only once loaded.
type Key []byte

// Parse decodes a base64 secret into a Key. Surrounding whitespace, such
// as the trailing newline of a secret file, is ignored.
func Parse(secret string) (Key, error) {
	trimmed := bytes.TrimSpace([]byte(secret))
	if len(trimmed) == 0 {
		return nil, ErrNoSecret
	}

	raw := make([]byte, base64.StdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.StdEncoding.Decode(raw, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	if n < MinKeySize {
		return nil, ErrKeyTooShort
	}

	return Key(raw[:n]), nil
}

// Load reads the secret from whichever source cfg names and parses it.
func Load(ctx context.Context, cfg *sc.Config) (Key, error) {
	sources := 0
	for _, s := range []string{cfg.SecretKey, cfg.SecretKeyFile, cfg.SecretS3Key} {
		if s != "" {
			sources++
		}
	}
	switch sources {
	case 0:
		return nil, ErrNoSecret
	case 1:
	default:
		return nil, ErrAmbiguousKey
	}

	switch {
	case cfg.SecretKey != "":
		return Parse(cfg.SecretKey)
	case cfg.SecretKeyFile != "":
		return loadFile(cfg.SecretKeyFile)
	default:
		return loadS3(ctx, cfg)
	}
}

func loadFile(path string) (Key, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret file: %w", err)
	}
	if len(data) > maxSecretSize {
		return nil, fmt.Errorf("secret file %s is larger than %d bytes", path, maxSecretSize)
	}
	return Parse(string(data))
}

func newS3Client(ctx context.Context, cfg *sc.Config) (*s3.Client, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

func loadS3(ctx context.Context, cfg *sc.Config) (Key, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	out, err := getObject(client, ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.S3Bucket),
		Key:    aws.String(cfg.SecretS3Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get secret object %s/%s: %w", cfg.S3Bucket, cfg.SecretS3Key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxSecretSize+1))
	if err != nil {
		return nil, fmt.Errorf("read secret object: %w", err)
	}
	if len(data) > maxSecretSize {
		return nil, fmt.Errorf("secret object is larger than %d bytes", maxSecretSize)
	}

	return Parse(string(data))
}
