package guidance

import (
	"go.uber.org/fx"
)

// Module provides guidance dependencies via fx
var Module = fx.Module("guidance",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
