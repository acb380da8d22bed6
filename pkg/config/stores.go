package config

import (
	"context"
	"fmt"

	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/pkg/metrics"
	"github.com/marmos91/homefs/pkg/store/account"
	accountbadger "github.com/marmos91/homefs/pkg/store/account/badger"
	"github.com/marmos91/homefs/pkg/store/account/jsonfile"
	accountmemory "github.com/marmos91/homefs/pkg/store/account/memory"
	"github.com/marmos91/homefs/pkg/store/account/postgres"
	"github.com/marmos91/homefs/pkg/store/content"
	contentfs "github.com/marmos91/homefs/pkg/store/content/fs"
	contentmemory "github.com/marmos91/homefs/pkg/store/content/memory"
	contents3 "github.com/marmos91/homefs/pkg/store/content/s3"
	"github.com/mitchellh/mapstructure"
)

// s3Options is the content.s3 section: client settings plus store layout.
type s3Options struct {
	contents3.ClientConfig `mapstructure:",squash"`

	Bucket    string `mapstructure:"bucket"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// CreateAccountStore creates the account store selected by cfg.Type.
//
// The type-specific map is decoded with mapstructure into the backend's own
// configuration struct.
//
// Supported types:
//   - "memory": volatile, for tests and demos
//   - "jsonfile": single JSON document (users.json)
//   - "badger": embedded BadgerDB
//   - "postgres": PostgreSQL through pgx, migrated with goose
func CreateAccountStore(ctx context.Context, cfg *AccountsConfig) (account.Store, error) {
	switch cfg.Type {
	case "memory":
		return accountmemory.NewMemoryAccountStore(), nil

	case "jsonfile":
		var storeCfg jsonfile.JSONFileAccountStoreConfig
		if err := decode(cfg.JSONFile, &storeCfg); err != nil {
			return nil, fmt.Errorf("invalid jsonfile config: %w", err)
		}
		store, err := jsonfile.NewJSONFileAccountStore(ctx, storeCfg)
		if err != nil {
			return nil, err
		}
		return store, nil

	case "badger":
		var storeCfg accountbadger.BadgerAccountStoreConfig
		if err := decode(cfg.Badger, &storeCfg); err != nil {
			return nil, fmt.Errorf("invalid badger config: %w", err)
		}
		store, err := accountbadger.NewBadgerAccountStore(ctx, storeCfg)
		if err != nil {
			return nil, err
		}
		return store, nil

	case "postgres":
		var storeCfg postgres.PostgresAccountStoreConfig
		if err := decode(cfg.Postgres, &storeCfg); err != nil {
			return nil, fmt.Errorf("invalid postgres config: %w", err)
		}
		store, err := postgres.NewPostgresAccountStore(ctx, storeCfg)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown account store type: %q", cfg.Type)
	}
}

// CreateContentStore creates the content store selected by cfg.Type, wrapped
// with m when it is not nil.
//
// Supported types:
//   - "filesystem": homes as directories under a root path
//   - "memory": volatile, for tests and demos
//   - "s3": Amazon S3 or an S3-compatible server
func CreateContentStore(ctx context.Context, cfg *ContentConfig, m metrics.ContentMetrics) (content.Store, error) {
	var (
		store content.Store
		err   error
	)

	switch cfg.Type {
	case "filesystem":
		var storeCfg contentfs.FSContentStoreConfig
		if err := decode(cfg.Filesystem, &storeCfg); err != nil {
			return nil, fmt.Errorf("invalid filesystem config: %w", err)
		}
		store, err = contentfs.NewFSContentStore(ctx, storeCfg)

	case "memory":
		store = contentmemory.NewMemoryContentStore()

	case "s3":
		store, err = createS3ContentStore(ctx, cfg.S3)

	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return content.WithMetrics(store, cfg.Type, m), nil
}

func createS3ContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	var opts s3Options
	if err := decode(options, &opts); err != nil {
		return nil, fmt.Errorf("invalid s3 config: %w", err)
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3 content store: bucket is required")
	}

	client, err := contents3.NewClient(ctx, opts.ClientConfig)
	if err != nil {
		return nil, err
	}

	store, err := contents3.NewS3ContentStore(ctx, contents3.S3ContentStoreConfig{
		Client:    client,
		Bucket:    opts.Bucket,
		KeyPrefix: opts.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s region=%s prefix=%s",
		opts.Bucket, opts.Region, opts.KeyPrefix)
	return store, nil
}

// decode maps a backend section onto its config struct. Strings are accepted
// for numbers, booleans and durations since environment overrides arrive as text.
func decode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
