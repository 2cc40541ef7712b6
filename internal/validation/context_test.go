package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watercv/syncvalid/internal/client"
	"github.com/watercv/syncvalid/internal/coordinator"
)

func testPort(t *testing.T) int {
	t.Helper()
	return 15000 + int(time.Now().UnixNano()%4000)
}

func TestConfigFromEnvTCPDefaults(t *testing.T) {
	t.Setenv("CROSS_VALIDATION_INSTANCE_ID", "0")
	t.Setenv("CROSS_VALIDATION_NUM_INSTANCES", "2")
	t.Setenv("CROSS_VALIDATION_SERVER_ADDR", "")
	t.Setenv("CROSS_VALIDATION_SERVER_PORT", "")
	t.Setenv("CROSS_VALIDATION_TRANSPORT", "")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, int32(0), cfg.InstanceID)
	require.Equal(t, 2, cfg.NumInstances)
	require.Equal(t, "0.0.0.0", cfg.ServerAddr)
	require.Equal(t, 5000, cfg.ServerPort)
	require.Equal(t, "tcp", cfg.Transport)

	ep, err := cfg.Endpoint()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:5000", ep.Address)
}

func TestConfigFromEnvMissingRequiredFails(t *testing.T) {
	t.Setenv("CROSS_VALIDATION_INSTANCE_ID", "")
	t.Setenv("CROSS_VALIDATION_NUM_INSTANCES", "2")
	_, err := ConfigFromEnv()
	require.Error(t, err)
}

func TestConfigFromEnvRejectsNumInstancesAboveMax(t *testing.T) {
	t.Setenv("CROSS_VALIDATION_INSTANCE_ID", "0")
	t.Setenv("CROSS_VALIDATION_NUM_INSTANCES", "5")
	_, err := ConfigFromEnv()
	require.Error(t, err)
}

func TestContextInitTwoInstancesValidateMatch(t *testing.T) {
	port := testPort(t)
	cfg0 := Config{InstanceID: 0, NumInstances: 2, ServerAddr: "127.0.0.1", ServerPort: port, Transport: "tcp"}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	vc0, err := Init(ctx, cfg0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vc0.Cleanup() })

	cfg1 := cfg0
	cfg1.InstanceID = 1
	vc1, err := Init(ctx, cfg1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vc1.Cleanup() })

	errCh := make(chan error, 2)
	go func() { errCh <- vc0.Validate(ctx, "step-1", "energy=1.0") }()
	go func() { errCh <- vc1.Validate(ctx, "step-1", "energy=1.0000000001") }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for Validate")
		}
	}
}

func TestContextValidateOrWarnMismatchDoesNotAbort(t *testing.T) {
	aborted := false
	original := client.ProcessAbort
	client.ProcessAbort = func(format string, args ...any) { aborted = true }
	defer func() { client.ProcessAbort = original }()
	originalCoord := coordinator.ProcessAbort
	coordinator.ProcessAbort = func(format string, args ...any) {}
	defer func() { coordinator.ProcessAbort = originalCoord }()

	port := testPort(t)
	cfg0 := Config{InstanceID: 0, NumInstances: 2, ServerAddr: "127.0.0.1", ServerPort: port, Transport: "tcp"}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	vc0, err := Init(ctx, cfg0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vc0.Cleanup() })

	cfg1 := cfg0
	cfg1.InstanceID = 1
	vc1, err := Init(ctx, cfg1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vc1.Cleanup() })

	passedCh := make(chan bool, 1)
	go func() {
		passed, err := vc0.ValidateOrWarn(ctx, "step-1", "energy=1.0")
		require.NoError(t, err)
		passedCh <- passed
	}()
	go vc1.ValidateOrWarn(ctx, "step-1", "energy=9.0")

	select {
	case passed := <-passedCh:
		require.False(t, passed)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}
	require.False(t, aborted)
}

func TestContextPreCheckpointAndResumeRoundTrip(t *testing.T) {
	port := testPort(t)
	cfg0 := Config{InstanceID: 0, NumInstances: 1, ServerAddr: "127.0.0.1", ServerPort: port, Transport: "tcp"}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	vc0, err := Init(ctx, cfg0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vc0.Cleanup() })

	require.NoError(t, vc0.Validate(ctx, "step-1", "energy=1.0"))

	require.NoError(t, vc0.PreCheckpoint(ctx))
	require.True(t, vc0.Checkpointing())

	// Validate/ValidateOrWarn must return immediately as success while a
	// checkpoint is in progress, without touching the (already torn down)
	// client connection.
	require.NoError(t, vc0.Validate(ctx, "during-checkpoint", "energy=999.0"))
	passed, err := vc0.ValidateOrWarn(ctx, "during-checkpoint", "energy=999.0")
	require.NoError(t, err)
	require.True(t, passed)

	require.NoError(t, vc0.Resume(ctx))
	require.False(t, vc0.Checkpointing())

	require.NoError(t, vc0.Validate(ctx, "step-2", "energy=2.0"))
}

func TestContextCleanupIsIdempotent(t *testing.T) {
	port := testPort(t)
	cfg0 := Config{InstanceID: 0, NumInstances: 1, ServerAddr: "127.0.0.1", ServerPort: port, Transport: "tcp"}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	vc0, err := Init(ctx, cfg0)
	require.NoError(t, err)

	require.NoError(t, vc0.Cleanup())
	require.NoError(t, vc0.Cleanup())
}
