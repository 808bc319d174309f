package dataset

import (
	"context"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
)

// ErrNotExist is returned when a file to open does not exist.
var ErrNotExist = errors.New("file does not exist")

// IsGoogleStorage reports whether the path refers to a Google Storage object.
func IsGoogleStorage(path string) bool {
	return strings.HasPrefix(path, "gs://")
}

// Join joins a directory and a file name. It works for both local and gs:// paths.
func Join(dir, name string) string {
	return strings.TrimSuffix(dir, "/") + "/" + name
}

// Open opens a local file, or a Google Storage object when the path starts with gs:// and a client
// is given.
func Open(ctx context.Context, path string, client *storage.Client) (io.ReadCloser, error) {
	if IsGoogleStorage(path) {
		if client == nil {
			return nil, errors.Errorf("%s: no google storage client configured", path)
		}
		// Detect the bucket and the path to the actual file
		pathParts := strings.SplitN(strings.TrimPrefix(path, "gs://"), "/", 2)
		if len(pathParts) != 2 {
			return nil, errors.Errorf("tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
		}
		r, err := client.Bucket(pathParts[0]).Object(pathParts[1]).NewReader(ctx)
		if err == storage.ErrObjectNotExist {
			return nil, errors.Wrap(ErrNotExist, path)
		}
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		return r, nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotExist, path)
	}
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return f, nil
}

// ReadFile reads the whole file at path. See Open.
func ReadFile(ctx context.Context, path string, client *storage.Client) ([]byte, error) {
	r, err := Open(ctx, path, client)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return b, nil
}
