package llmquery

import (
	"go.uber.org/fx"
)

// Module provides llmquery dependencies via fx
var Module = fx.Module("llmquery",
	fx.Provide(
		NewProgressCache,
		NewEnrichmentStore,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
