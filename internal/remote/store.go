// Package remote fetches rawacf files from the data archive into a local
// working directory.
package remote

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object is one archived file.
type Object struct {
	Key  string
	Size int64
}

// ObjectStore is the archive the fetcher reads from.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Download(ctx context.Context, key, dest string) (int64, error)
}

// StoreConfig describes how to reach the archive.
type StoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// NewStore returns a DirStore for file:// endpoints and an S3Store for
// everything else.
func NewStore(cfg StoreConfig) (ObjectStore, error) {
	if root, ok := strings.CutPrefix(cfg.Endpoint, "file://"); ok {
		return NewDirStore(root)
	}
	return NewS3Store(cfg)
}

// S3Store reads from an S3-compatible bucket.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store creates a minio client for cfg.
func NewS3Store(cfg StoreConfig) (*S3Store, error) {
	if cfg.Endpoint == "" {
		return nil, wrapError(CodeEndpointUnreachable, false, fmt.Errorf("endpoint is required"))
	}
	if cfg.Bucket == "" {
		return nil, wrapError(CodeBucketNotFound, false, fmt.Errorf("bucket is required"))
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	var creds *credentials.Credentials
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewStatic("", "", "", credentials.SignatureAnonymous)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, wrapError(CodeEndpointUnreachable, true, fmt.Errorf("failed to create minio client: %w", err))
	}

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// List returns every object under prefix, ordered by key.
func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, classifyMinioError(obj.Err)
		}
		objects = append(objects, Object{Key: obj.Key, Size: obj.Size})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Download writes the object to dest.
func (s *S3Store) Download(ctx context.Context, key, dest string) (int64, error) {
	if err := s.client.FGetObject(ctx, s.bucket, key, dest, minio.GetObjectOptions{}); err != nil {
		return 0, classifyMinioError(err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// DirStore serves a local directory tree laid out like the archive.
type DirStore struct {
	root string
}

// NewDirStore opens root, which must be an existing directory.
func NewDirStore(root string) (*DirStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, wrapError(CodeBucketNotFound, false, err)
	}
	if !info.IsDir() {
		return nil, wrapError(CodeBucketNotFound, false, fmt.Errorf("%s is not a directory", root))
	}
	return &DirStore{root: root}, nil
}

func (d *DirStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	err := filepath.WalkDir(d.root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func (d *DirStore) Download(ctx context.Context, key, dest string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	src, err := os.Open(filepath.Join(d.root, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, wrapError(CodeObjectNotFound, false, err)
		}
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, wrapError(CodeDownloadFailed, true, err)
	}
	return n, nil
}
