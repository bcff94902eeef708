package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

// Every constructor in the graph must resolve exactly once; a second
// provider for any shared type (loggers included) fails validation.
func TestDependencyGraphIsValid(t *testing.T) {
	require.NoError(t, fx.ValidateApp(appOptions()...))
}
