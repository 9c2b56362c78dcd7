package storagesvc

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
)

// New returns the file storage selected by conf.Storage.Backend.
// Outside of PROD an unset blob endpoint falls back to the local filesystem.
func New(ctx context.Context, conf *core.Config, logger core.Logger) (core.FileStorage, error) {
	switch conf.Storage.Backend {
	case BackendBlob:
		if conf.Storage.Endpoint == "" && conf.Env != "PROD" {
			logger.Warn("storagesvc.New: no blob storage endpoint, falling back to local storage")
			return NewLocal(conf.Storage.LocalDir)
		}
		return NewBlob(ctx, conf.Storage)
	case BackendLocal, "":
		return NewLocal(conf.Storage.LocalDir)
	default:
		return nil, errors.Errorf("unknown storage backend %q", conf.Storage.Backend)
	}
}
