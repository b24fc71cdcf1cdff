// Package app wires the application together: configuration, tracing,
// storage backends, the Genkit runtime and the retrieval pipeline.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/index"
	"github.com/ragline/ragline/internal/llm"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/rag"
	"github.com/ragline/ragline/internal/session"
)

const closeTimeout = 5 * time.Second

// App is the application container. Setup builds it; Close releases
// everything it owns in reverse order.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit       *genkit.Genkit
	DBPool       *pgxpool.Pool
	GraphDriver  neo4j.DriverWithContext
	SessionStore *session.Store
	IndexStore   *index.Store
	LLM          *llm.Client
	Engine       *rag.Engine

	cleanups []func()
}

// onClose registers a cleanup to run during Close, in reverse
// registration order.
func (a *App) onClose(fn func()) {
	a.cleanups = append(a.cleanups, fn)
}

// Close releases all resources. Safe to call on a partially built App.
func (a *App) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

// closeGraphDriver shuts the Neo4j driver down with a bounded context.
func closeGraphDriver(driver neo4j.DriverWithContext, logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := driver.Close(ctx); err != nil {
		logger.Warn("failed to close graph driver", "error", err)
	}
}
