package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstruments_RecordAndCollect(t *testing.T) {
	in, err := New()
	require.NoError(t, err)

	ctx := context.Background()
	in.RecordDecision(ctx, "match", 0.95)
	in.RecordDecision(ctx, "review", 0.6)
	in.RecordDecision(ctx, "no_match", 0.1)

	rm, err := in.Collect(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rm.ScopeMetrics)
}
