package dump

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Target is where a dump lives: a local file or an S3 object.
type Target struct {
	Path   string // local file, empty for S3
	Bucket string
	Key    string
}

// ParseTarget parses a local path, file:// URI or s3://bucket/key URI.
func ParseTarget(uri string) (Target, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		u, err := url.Parse(uri)
		if err != nil {
			return Target{}, fmt.Errorf("invalid dump target %q: %w", uri, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Target{}, fmt.Errorf("invalid dump target %q: expected s3://bucket/key", uri)
		}
		return Target{Bucket: u.Host, Key: key}, nil
	case strings.HasPrefix(uri, "file://"):
		uri = strings.TrimPrefix(uri, "file://")
	case strings.Contains(uri, "://"):
		return Target{}, fmt.Errorf("invalid dump target %q: unsupported scheme", uri)
	}
	if uri == "" {
		return Target{}, fmt.Errorf("invalid dump target: empty path")
	}
	return Target{Path: uri}, nil
}

// IsS3 reports whether t is an S3 object.
func (t Target) IsS3() bool {
	return t.Bucket != ""
}

func (t Target) String() string {
	if t.IsS3() {
		return "s3://" + t.Bucket + "/" + t.Key
	}
	return t.Path
}

// S3Config configures access to S3 targets.
type S3Config struct {
	// Region of the bucket, the SDK default chain is used if empty.
	Region string
	// Endpoint is an optional custom endpoint for S3 compatible stores.
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
	// Client replaces the client built from the fields above.
	Client *s3.Client
}

func (c S3Config) client(ctx context.Context) (*s3.Client, error) {
	if c.Client != nil {
		return c.Client, nil
	}
	var opts []func(*config.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, config.WithRegion(c.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if c.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(c.Endpoint)
		})
	}
	if c.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// --------------------------------------------------------------------------
// Dump & Restore
// --------------------------------------------------------------------------

// Dump writes every pair that export produces to target and returns the
// number of pairs. S3 targets are staged in a temporary file and uploaded
// once the dump is complete.
func Dump(ctx context.Context, target Target, cfg S3Config, export func(add func(key string, value []byte) error) error) (int, error) {
	path := target.Path
	if target.IsS3() {
		tmp, err := os.CreateTemp("", "dstats-dump-*")
		if err != nil {
			return 0, err
		}
		path = tmp.Name()
		_ = tmp.Close()
		defer os.Remove(path)
	}

	n, err := writeFile(path, export)
	if err != nil {
		return n, fmt.Errorf("dump to %s: %w", target, err)
	}
	if target.IsS3() {
		if err := upload(ctx, cfg, target, path); err != nil {
			return n, fmt.Errorf("dump to %s: %w", target, err)
		}
	}
	log.Infof("dumped %d pairs to %s", n, target)
	return n, nil
}

func writeFile(path string, export func(add func(key string, value []byte) error) error) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w, err := NewWriter(f)
	if err != nil {
		return 0, err
	}
	if err := export(w.Add); err != nil {
		return w.Count(), err
	}
	if err := w.Close(); err != nil {
		return w.Count(), err
	}
	return w.Count(), f.Sync()
}

func upload(ctx context.Context, cfg S3Config, target Target, path string) error {
	client, err := cfg.client(ctx)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(target.Bucket),
		Key:    aws.String(target.Key),
		Body:   f,
	})
	return err
}

// Restore reads the dump at source and hands its pairs to load. It returns
// the count load reports.
func Restore(ctx context.Context, source Target, cfg S3Config, load func(pairs iter.Seq2[string, []byte]) (int, error)) (int, error) {
	var rc io.ReadCloser
	if source.IsS3() {
		client, err := cfg.client(ctx)
		if err != nil {
			return 0, err
		}
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(source.Bucket),
			Key:    aws.String(source.Key),
		})
		if err != nil {
			return 0, fmt.Errorf("restore from %s: %w", source, err)
		}
		rc = out.Body
	} else {
		f, err := os.Open(source.Path)
		if err != nil {
			return 0, fmt.Errorf("restore from %s: %w", source, err)
		}
		rc = f
	}
	defer rc.Close()

	r, err := NewReader(rc)
	if err != nil {
		return 0, fmt.Errorf("restore from %s: %w", source, err)
	}
	n, err := load(r.Pairs())
	if err != nil {
		return n, fmt.Errorf("restore from %s: %w", source, err)
	}
	if err := r.Err(); err != nil {
		return n, fmt.Errorf("restore from %s: %w", source, err)
	}
	log.Infof("restored %d pairs from %s", n, source)
	return n, nil
}
