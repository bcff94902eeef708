package ontology

import (
	"go.uber.org/fx"
)

// Module provides ontology dependencies via fx
var Module = fx.Module("ontology",
	fx.Provide(NewManager),
)
