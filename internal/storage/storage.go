// Package storage keeps uploaded CSV files in an object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/weison-t/thereader/internal/models"
)

// ObjectStore is the subset of S3 operations the ingest flow needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	List(ctx context.Context, prefix string) ([]models.StoredObject, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error)
	Ping(ctx context.Context) error
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName strips directories and replaces characters outside [A-Za-z0-9._-].
func SafeName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	name = strings.Trim(unsafeName.ReplaceAllString(name, "_"), "_")
	if name == "" || name == "." || name == ".." {
		return "upload.csv"
	}
	return name
}

// ObjectKey is "{dataset}/{unixmillis}_{safe_name}".
func ObjectKey(dataset, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d_%s", dataset, now.UnixMilli(), SafeName(filename))
}

func Prefix(dataset string) string {
	return dataset + "/"
}

// SortNewest orders objects by modification time, newest first, falling
// back to key order which embeds the upload timestamp.
func SortNewest(objs []models.StoredObject) {
	sort.SliceStable(objs, func(i, j int) bool {
		if !objs[i].LastModified.Equal(objs[j].LastModified) {
			return objs[i].LastModified.After(objs[j].LastModified)
		}
		return objs[i].Key > objs[j].Key
	})
}

// Latest returns the newest object under the dataset prefix.
func Latest(ctx context.Context, s ObjectStore, dataset string) (*models.StoredObject, error) {
	objs, err := s.List(ctx, Prefix(dataset))
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, nil
	}
	SortNewest(objs)
	return &objs[0], nil
}

// KeepLatest deletes every object under the dataset prefix except keep.
func KeepLatest(ctx context.Context, s ObjectStore, dataset, keep string) (int, error) {
	objs, err := s.List(ctx, Prefix(dataset))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, o := range objs {
		if o.Key == keep {
			continue
		}
		if err := s.Delete(ctx, o.Key); err != nil {
			return removed, fmt.Errorf("delete %s: %w", o.Key, err)
		}
		removed++
	}
	return removed, nil
}

// DeleteAll removes every object under the dataset prefix.
func DeleteAll(ctx context.Context, s ObjectStore, dataset string) (int, error) {
	return KeepLatest(ctx, s, dataset, "")
}
