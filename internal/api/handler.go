package api

import (
	"log/slog"
	"time"

	"github.com/shaiso/stepflow/internal/catalog"
	"github.com/shaiso/stepflow/internal/orchestrator"
	"github.com/shaiso/stepflow/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	engines *orchestrator.Engines
	history *repo.RunStore
	catalog *catalog.Catalog
	logger  *slog.Logger
	started time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Engines *orchestrator.Engines
	History *repo.RunStore
	Catalog *catalog.Catalog
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engines: cfg.Engines,
		history: cfg.History,
		catalog: cfg.Catalog,
		logger:  logger,
		started: time.Now(),
	}
}
