// Command participant runs one instance of a replicated molecular-dynamics
// computation and validates its intermediate state against its peers at a
// handful of illustrative sync points, via the internal/validation package.
//
// Configuration (environment variables):
//   - CROSS_VALIDATION_INSTANCE_ID: this instance's id (required)
//   - CROSS_VALIDATION_NUM_INSTANCES: total participant count (required)
//   - CROSS_VALIDATION_SERVER_ADDR: coordinator host, or unix socket path (default "0.0.0.0")
//   - CROSS_VALIDATION_SERVER_PORT: coordinator TCP port (default 5000)
//   - CROSS_VALIDATION_TRANSPORT: "tcp" (default) or "unix"
//
// Example usage:
//
//	CROSS_VALIDATION_INSTANCE_ID=0 \
//	CROSS_VALIDATION_NUM_INSTANCES=2 \
//	CROSS_VALIDATION_SERVER_ADDR=127.0.0.1 \
//	./participant
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/watercv/syncvalid/internal/validation"
)

func main() {
	cfg, err := validation.ConfigFromEnv()
	if err != nil {
		log.Fatalf("participant: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vc, err := validation.Init(ctx, cfg)
	if err != nil {
		log.Fatalf("participant[%d]: init: %v", cfg.InstanceID, err)
	}
	defer func() {
		if err := vc.Cleanup(); err != nil {
			log.Printf("participant[%d]: cleanup: %v", cfg.InstanceID, err)
		}
	}()

	checkpoint := make(chan os.Signal, 1)
	signal.Notify(checkpoint, syscall.SIGUSR1)
	go watchCheckpointSignal(ctx, vc, checkpoint)

	log.Printf("participant[%d]: starting simulation loop", cfg.InstanceID)
	if err := runSimulation(ctx, vc, cfg.InstanceID); err != nil {
		log.Printf("participant[%d]: simulation ended: %v", cfg.InstanceID, err)
	}

	log.Printf("participant[%d]: stopped", cfg.InstanceID)
}

// runSimulation stands in for the host molecular-dynamics loop: each
// "step" produces a deterministic fingerprint of this instance's state and
// validates it against its peers at the labeled sync points.
func runSimulation(ctx context.Context, vc *validation.Context, instanceID int32) error {
	labels := []SyncLabel{
		SyncWorkStartBegin,
		SyncForceComputePreRace,
		SyncForceComputePostRace,
		SyncPotentialEnergyPreRace,
		SyncPotentialEnergyPostRace,
		SyncStepEnd,
	}

	for step := 0; step < 10; step++ {
		if vc.Checkpointing() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		for _, label := range labels {
			fp := fingerprintFor(step, label)
			if err := vc.Validate(ctx, label.String(), fp); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// fingerprintFor produces a state fingerprint for a simulation step. Real
// hosts would derive this from actual force/energy arrays; every instance
// computing the same deterministic update should converge on identical
// values here.
func fingerprintFor(step int, label SyncLabel) string {
	energy := 1.0 + float64(step)*0.001
	return fmt.Sprintf("step=%d energy=%.10f", step, energy)
}

// watchCheckpointSignal demonstrates the PreCheckpoint/Resume hooks: on
// SIGUSR1 it tears down the connection, reconnects, and then waits out the
// settle delay, the way a DMTCP checkpoint/restore cycle would drive them.
func watchCheckpointSignal(ctx context.Context, vc *validation.Context, sig <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			log.Println("participant: received checkpoint signal, running PreCheckpoint")
			if err := vc.PreCheckpoint(ctx); err != nil {
				log.Printf("participant: pre-checkpoint: %v", err)
				continue
			}
			if err := vc.Resume(ctx); err != nil {
				log.Printf("participant: resume: %v", err)
			}
		}
	}
}
