package integrations

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/stepflow/internal/steps"
)

// ErrUnknownIntegration — нет набора handler'ов для интеграции.
var ErrUnknownIntegration = errors.New("unknown integration")

// Names возвращает имена поддерживаемых интеграций.
func Names() []string {
	return []string{IntegrationDocuments, IntegrationOrchestration}
}

// NewRegistry создаёт реестр интеграции: общие шаги (delay, http, transform)
// плюс шаги самой интеграции.
func NewRegistry(integration string, client *VendorClient, logger *slog.Logger) (*steps.Registry, error) {
	reg := steps.DefaultRegistry(logger)

	switch integration {
	case IntegrationDocuments:
		RegisterDocumentHandlers(reg, client)
	case IntegrationOrchestration:
		RegisterOrchestrationHandlers(reg, client)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegration, integration)
	}

	return reg, nil
}
