package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gatelock/gatelock-auth/internal/config"
	"github.com/gatelock/gatelock-auth/internal/telemetry"
)

func TestNewWithoutEndpointIsInert(t *testing.T) {
	provider, err := telemetry.New(context.Background(), config.Config{
		ServiceName: "gatelock-auth-test",
		Environment: "test",
	}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NoError(t, provider.Shutdown(context.Background()))
}
