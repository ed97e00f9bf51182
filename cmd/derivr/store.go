package main

import (
	"context"
	"fmt"

	"github.com/koustreak/derivr/internal/filestore"
	"github.com/koustreak/derivr/internal/filestore/memory"
	"github.com/koustreak/derivr/internal/filestore/minio"
	"github.com/koustreak/derivr/internal/filestore/s3"
)

func openStore(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
	switch cfg.Provider {
	case filestore.ProviderMinIO:
		d, err := minio.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	case filestore.ProviderS3:
		d, err := s3.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	case filestore.ProviderMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store provider %q", cfg.Provider)
	}
}
