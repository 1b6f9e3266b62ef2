package drafts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSExporter uploads finished documents to a bucket. Objects are written
// only if absent, so exporting the same run twice is a no-op.
type GCSExporter struct {
	client *storage.Client
	bucket string
	prefix string
	logger Logger
}

// NewGCSExporter connects to Cloud Storage. An empty credentialsFile uses
// application default credentials.
func NewGCSExporter(ctx context.Context, bucket, prefix, credentialsFile string, logger Logger) (*GCSExporter, error) {
	if bucket == "" {
		return nil, fmt.Errorf("drafts: export bucket must be provided")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drafts: create storage client: %w", err)
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &GCSExporter{client: client, bucket: bucket, prefix: prefix, logger: logger}, nil
}

// ObjectName returns the object key used for name.
func (e *GCSExporter) ObjectName(name string) string {
	return objectName(e.prefix, name)
}

func objectName(prefix, name string) string {
	name = strings.TrimLeft(name, "/")
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Export writes content as a markdown object and returns its gs:// URL.
func (e *GCSExporter) Export(ctx context.Context, name, content string) (string, error) {
	if err := checkID(name); err != nil {
		return "", err
	}
	object := e.ObjectName(name)
	url := "gs://" + e.bucket + "/" + object
	w := e.client.Bucket(e.bucket).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "text/markdown; charset=utf-8"

	if _, err := io.Copy(w, strings.NewReader(content)); err != nil {
		_ = w.Close()
		if alreadyExists(err) {
			e.logger.Printf("drafts: export %s skipped, object exists", url)
			return url, nil
		}
		return "", fmt.Errorf("drafts: write %s: %w", url, err)
	}
	if err := w.Close(); err != nil {
		if alreadyExists(err) {
			e.logger.Printf("drafts: export %s skipped, object exists", url)
			return url, nil
		}
		return "", fmt.Errorf("drafts: finalize %s: %w", url, err)
	}
	return url, nil
}

// Close releases the storage client.
func (e *GCSExporter) Close() error {
	return e.client.Close()
}

// alreadyExists reports a failed DoesNotExist precondition, meaning an
// earlier export of the same object already landed.
func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
