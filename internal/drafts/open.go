package drafts

import (
	"context"
	"fmt"

	"github.com/chambersiq/draftflow/internal/config"
)

// Open builds the draft store selected in cfg.
func Open(ctx context.Context, cfg *config.Config, logger Logger) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("drafts: config is required")
	}
	d := cfg.Project.Drafts
	switch d.Backend {
	case config.BackendFile, "":
		return NewFileStore(cfg.DraftsDir(), logger)
	case config.BackendFirestore:
		return NewFirestoreStore(ctx, d.ProjectID, d.Collection, d.CredentialsFile)
	default:
		return nil, fmt.Errorf("drafts: unknown backend %q", d.Backend)
	}
}

// OpenExporter builds the GCS exporter, or returns nil when export is off.
func OpenExporter(ctx context.Context, cfg *config.Config, logger Logger) (*GCSExporter, error) {
	if cfg == nil || cfg.Project.Export.Bucket == "" {
		return nil, nil
	}
	return NewGCSExporter(ctx, cfg.Project.Export.Bucket, cfg.Project.Export.Prefix, cfg.Project.Drafts.CredentialsFile, logger)
}
