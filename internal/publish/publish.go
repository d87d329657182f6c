// Package publish uploads the exported static tree to S3-compatible object
// storage. Destinations use the s3+http:// or s3+https:// scheme, followed
// by host, bucket and an optional key prefix.
package publish

import (
	"context"
	"crypto/md5" //nolint:gosec // matches the storage ETag, not used for security
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/alnah/go-nbembed/internal/hints"
	"github.com/alnah/go-nbembed/internal/logging"
)

// Sentinel errors for publish operations.
var (
	ErrInvalidDestination = errors.New("invalid publish destination")
	ErrMissingCredentials = errors.New("missing storage credentials")
	ErrUpload             = errors.New("upload failed")
)

// Credential environment variables.
const (
	EnvAccessKey = "AWS_ACCESS_KEY_ID"
	EnvSecretKey = "AWS_SECRET_ACCESS_KEY"
)

// Destination is a parsed s3+http(s) URL.
type Destination struct {
	Endpoint string
	Secure   bool
	Bucket   string
	Prefix   string
}

// Key returns the object key for a slash-separated path relative to the
// published root.
func (d Destination) Key(rel string) string {
	if d.Prefix == "" {
		return rel
	}
	return path.Join(d.Prefix, rel)
}

func (d Destination) String() string {
	scheme := "s3+http"
	if d.Secure {
		scheme = "s3+https"
	}
	return scheme + "://" + path.Join(d.Endpoint, d.Bucket, d.Prefix)
}

// ParseDestination parses s3+http://host/bucket/prefix.
func ParseDestination(raw string) (Destination, error) {
	if !strings.HasPrefix(raw, "s3+http://") && !strings.HasPrefix(raw, "s3+https://") {
		return Destination{}, fmt.Errorf("%w: %q must start with s3+http:// or s3+https://", ErrInvalidDestination, raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	if u.Host == "" {
		return Destination{}, fmt.Errorf("%w: missing host in %q", ErrInvalidDestination, raw)
	}

	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if parts[0] == "" {
		return Destination{}, fmt.Errorf("%w: missing bucket in %q", ErrInvalidDestination, raw)
	}
	d := Destination{
		Endpoint: u.Host,
		Secure:   u.Scheme == "s3+https",
		Bucket:   parts[0],
	}
	if len(parts) > 1 {
		d.Prefix = strings.Trim(parts[1], "/")
	}
	return d, nil
}

// ObjectStore is the subset of the storage client used for publishing.
// *minio.Client satisfies it.
type ObjectStore interface {
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FPutObject(ctx context.Context, bucket, key, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewClient creates a storage client for d using credentials from the
// environment.
func NewClient(d Destination) (*minio.Client, error) {
	accessKey := os.Getenv(EnvAccessKey)
	secretKey := os.Getenv(EnvSecretKey)
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("%w: %s and %s must be set%s", ErrMissingCredentials, EnvAccessKey, EnvSecretKey, hints.ForPublishCredentials())
	}
	return minio.New(d.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: d.Secure,
	})
}

// Report summarizes a publish run.
type Report struct {
	Uploaded []string
	Skipped  []string
}

// Publisher uploads a directory tree to a destination.
type Publisher struct {
	store  ObjectStore
	dest   Destination
	logger *slog.Logger
}

// NewPublisher creates a Publisher. A nil logger means slog.Default().
func NewPublisher(store ObjectStore, dest Destination, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, dest: dest, logger: logging.OrDefault(logger)}
}

// Publish uploads every regular file under root. Objects whose size and
// ETag already match the local file are skipped. The first upload error
// stops the run.
func (p *Publisher) Publish(ctx context.Context, root string) (Report, error) {
	var report Report

	files, err := listFiles(root)
	if err != nil {
		return report, err
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		key := p.dest.Key(rel)
		local := filepath.Join(root, filepath.FromSlash(rel))

		same, err := p.unchanged(ctx, key, local)
		if err != nil {
			return report, err
		}
		if same {
			p.logger.Debug("unchanged", "key", key)
			report.Skipped = append(report.Skipped, key)
			continue
		}

		_, err = p.store.FPutObject(ctx, p.dest.Bucket, key, local, minio.PutObjectOptions{
			ContentType: ContentType(rel),
		})
		if err != nil {
			return report, fmt.Errorf("%w: %s: %v", ErrUpload, key, err)
		}
		p.logger.Info("uploaded", "key", key)
		report.Uploaded = append(report.Uploaded, key)
	}
	return report, nil
}

// unchanged reports whether the remote object matches the local file.
// A failed stat (including a missing object) means the file is uploaded.
func (p *Publisher) unchanged(ctx context.Context, key, local string) (bool, error) {
	info, err := os.Stat(local)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	remote, err := p.store.StatObject(ctx, p.dest.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if code := minio.ToErrorResponse(err).Code; code != "" && code != "NoSuchKey" {
			p.logger.Debug("stat failed", "key", key, "code", code)
		}
		return false, nil
	}
	if remote.Size != info.Size() {
		return false, nil
	}
	sum, err := fileMD5(local)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	return strings.Trim(remote.ETag, `"`) == sum, nil
}

// listFiles returns slash-separated paths of the regular files under root,
// sorted.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walking %s: %v", ErrUpload, root, err)
	}
	sort.Strings(files)
	return files, nil
}

func fileMD5(p string) (string, error) {
	f, err := os.Open(p) // #nosec G304 -- path comes from walking the static tree
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// contentTypes covers extensions the system MIME table may lack.
var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".js":    "text/javascript; charset=utf-8",
	".mjs":   "text/javascript; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".json":  "application/json",
	".wasm":  "application/wasm",
	".py":    "text/x-python; charset=utf-8",
	".ipynb": "application/x-ipynb+json",
	".png":   "image/png",
	".svg":   "image/svg+xml",
}

// ContentType returns the upload content type for name.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
