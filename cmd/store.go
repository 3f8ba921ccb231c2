package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/drilonhametaj25/client-sniper/internal/business"
)

// initStore opens the configured entity store. SQLite databases are
// migrated on open; Postgres schemas are managed with the migrate command.
func initStore(ctx context.Context) (business.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "client-sniper.db"
		}
		st, err := business.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	case "postgres":
		return business.NewPostgres(ctx, cfg.Store.DatabaseURL, business.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// resolverOptions maps the resolve config section onto resolver options.
func resolverOptions() business.Options {
	opts := business.DefaultOptions()
	if cfg.Resolve.Threshold > 0 {
		opts.Threshold = cfg.Resolve.Threshold
	}
	if cfg.Resolve.MaxCandidates > 0 {
		opts.MaxCandidates = cfg.Resolve.MaxCandidates
	}
	if d := cfg.Resolve.LookupTimeout(); d > 0 {
		opts.LookupTimeout = d
	}
	if d := cfg.Resolve.WriteTimeout(); d > 0 {
		opts.WriteTimeout = d
	}
	if cfg.Resolve.MaxAttempts > 0 {
		opts.MaxAttempts = cfg.Resolve.MaxAttempts
	}
	return opts
}

// writeOutput renders v as indented JSON or YAML.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "encode json output")
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml output")
		}
		return eris.Wrap(enc.Close(), "encode yaml output")
	default:
		return eris.Errorf("unsupported output format %q (json|yaml)", format)
	}
}
