package validation

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/watercv/syncvalid/internal/transport"
)

// MaxInstances is the largest NumInstances this implementation accepts,
// matching spec.md §1's MAX_INSTANCES = 4.
const MaxInstances = 4

// Config is read once from the environment at Init time, mirroring the
// teacher's getenv/mustGetenv pattern in cmd/node/main.go and
// cmd/coordinator/main.go.
type Config struct {
	// InstanceID is this process's participant id; instance 0 also hosts
	// the rendezvous coordinator.
	InstanceID int32
	// NumInstances is the total number of participants expected to register.
	NumInstances int
	// ServerAddr is the coordinator's TCP host or, for Transport == "unix",
	// the filesystem path of the rendezvous socket.
	ServerAddr string
	// ServerPort is the coordinator's TCP port. Unused for Transport == "unix".
	ServerPort int
	// Transport selects "tcp" (default) or "unix".
	Transport string
}

// ConfigFromEnv builds a Config from the environment variables named in
// spec.md §6: CROSS_VALIDATION_INSTANCE_ID, CROSS_VALIDATION_NUM_INSTANCES,
// CROSS_VALIDATION_SERVER_ADDR, CROSS_VALIDATION_SERVER_PORT,
// CROSS_VALIDATION_TRANSPORT.
func ConfigFromEnv() (Config, error) {
	instanceID, err := mustGetenvInt("CROSS_VALIDATION_INSTANCE_ID")
	if err != nil {
		return Config{}, err
	}
	numInstances, err := mustGetenvInt("CROSS_VALIDATION_NUM_INSTANCES")
	if err != nil {
		return Config{}, err
	}
	if numInstances > MaxInstances {
		return Config{}, fmt.Errorf("validation: CROSS_VALIDATION_NUM_INSTANCES=%d exceeds MaxInstances=%d", numInstances, MaxInstances)
	}

	return Config{
		InstanceID:   int32(instanceID),
		NumInstances: numInstances,
		ServerAddr:   getenv("CROSS_VALIDATION_SERVER_ADDR", "0.0.0.0"),
		ServerPort:   getenvInt("CROSS_VALIDATION_SERVER_PORT", 5000),
		Transport:    getenv("CROSS_VALIDATION_TRANSPORT", "tcp"),
	}, nil
}

// Endpoint builds the transport.Endpoint this Config points at.
func (c Config) Endpoint() (transport.Endpoint, error) {
	switch c.Transport {
	case "", "tcp":
		return transport.Endpoint{Family: transport.TCP, Address: fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)}, nil
	case "unix":
		return transport.Endpoint{Family: transport.Unix, Address: c.ServerAddr}, nil
	default:
		return transport.Endpoint{}, fmt.Errorf("validation: unknown transport %q", c.Transport)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("validation: invalid int for %s=%q, using default %d", k, v, def)
		return def
	}
	return n
}

func mustGetenvInt(k string) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return 0, fmt.Errorf("validation: missing required env %s", k)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("validation: invalid int for %s=%q: %w", k, v, err)
	}
	return n, nil
}
