// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aqwatch/aqwatch/pkg/persistence"
	"github.com/aqwatch/aqwatch/pkg/persistence/file"
	"github.com/aqwatch/aqwatch/pkg/persistence/postgresql"
)

// NewPersistence builds the persistence backend the database URL selects:
// postgres URLs get the relational store, anything else is treated as a file
// root for local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgres persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}
