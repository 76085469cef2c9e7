package cli

import (
	"context"
	"log/slog"

	"github.com/roach88/strand/internal/config"
	"github.com/roach88/strand/internal/engine"
	"github.com/roach88/strand/internal/session"
)

// ConnFlags holds the connection flags shared by exec and query.
type ConnFlags struct {
	Database   string
	ConfigFile string
	ReadOnly   bool
}

// openConnection builds the configuration from flags and opens a serialized
// connection against the real SQLite engine. The returned cleanup disposes
// the connection and waits for its worker to drain.
func openConnection(ctx context.Context, flags ConnFlags) (*session.Connection, func(), error) {
	cfg := config.Default()
	if flags.ConfigFile != "" {
		loaded, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	if flags.Database != "" {
		cfg = cfg.WithPath(flags.Database)
	}
	if flags.ReadOnly {
		cfg = cfg.WithReadOnly(true)
	}

	conn, err := session.Open(ctx, engine.NewSQLite(), cfg)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if _, err := conn.Dispose().Await(context.Background()); err != nil {
			slog.Error("error disposing connection", "conn", conn.ID(), "error", err)
		}
		<-conn.Done()
	}
	return conn, cleanup, nil
}
