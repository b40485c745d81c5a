package storage

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"upscaled/internal/adapters/storage/gdrive"
	"upscaled/internal/adapters/storage/localfs"
	"upscaled/internal/config"
)

// NewProvider builds the configured blob store.
func NewProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "localfs":
		if cfg.LocalRoot == "" {
			return nil, errors.New("missing STORAGE_LOCAL_ROOT")
		}
		return localfs.New(cfg.LocalRoot), nil

	case "gdrive":
		return newGDriveProvider(ctx, cfg.GDrive)

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

func newGDriveProvider(ctx context.Context, cfg config.GDriveConfig) (Provider, error) {
	var missing []error
	if cfg.ClientID == "" {
		missing = append(missing, errors.New("missing GDRIVE_CLIENT_ID"))
	}
	if cfg.ClientSecret == "" {
		missing = append(missing, errors.New("missing GDRIVE_CLIENT_SECRET"))
	}
	if cfg.RefreshToken == "" {
		missing = append(missing, errors.New("missing GDRIVE_REFRESH_TOKEN"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return gdrive.NewClient(srv, cfg.FolderID), nil
}
