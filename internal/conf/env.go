// env.go - Environment variable configuration and validation for fifostream
package conf

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "FIFOSTREAM_DEBUG", validateEnvBool},
		{"logging.defaultlevel", "FIFOSTREAM_LOG_LEVEL", validateEnvLogLevel},

		// Pool and engine
		{"pool.chunks", "FIFOSTREAM_POOL_CHUNKS", validateEnvPositiveInt},
		{"pool.chunksize", "FIFOSTREAM_POOL_CHUNKSIZE", validateEnvChunkSize},
		{"stream.txqueuedepth", "FIFOSTREAM_TX_QUEUE_DEPTH", validateEnvPositiveInt},
		{"stream.rxqueuedepth", "FIFOSTREAM_RX_QUEUE_DEPTH", validateEnvPositiveInt},
		{"stream.txfullpolicy", "FIFOSTREAM_TX_FULL_POLICY", validateEnvPolicy},
		{"stream.receive", "FIFOSTREAM_RECEIVE", validateEnvBool},

		// Backend
		{"fifo.backend", "FIFOSTREAM_BACKEND", validateEnvBackend},
		{"fifo.uiodevice", "FIFOSTREAM_UIO_DEVICE", validateEnvPath},
		{"fifo.sim.loopback", "FIFOSTREAM_SIM_LOOPBACK", validateEnvBool},

		// Player
		{"player.mode", "FIFOSTREAM_MODE", validateEnvMode},
		{"player.wav", "FIFOSTREAM_WAV", validateEnvPath},
		{"player.record", "FIFOSTREAM_RECORD", validateEnvPath},

		// Observability
		{"metrics.enabled", "FIFOSTREAM_METRICS_ENABLED", validateEnvBool},
		{"metrics.listen", "FIFOSTREAM_METRICS_LISTEN", validateEnvListen},
		{"telemetry.enabled", "FIFOSTREAM_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "FIFOSTREAM_SENTRY_DSN", validateEnvDSN},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

// validateEnvChunkSize requires whole 32-bit sample slots
func validateEnvChunkSize(value string) error {
	if err := validateEnvPositiveInt(value); err != nil {
		return err
	}
	n, _ := strconv.Atoi(value)
	if n%4 != 0 {
		return fmt.Errorf("must be a multiple of 4")
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	return oneOf(strings.ToLower(value), "trace", "debug", "info", "warn", "error")
}

func validateEnvPolicy(value string) error {
	return oneOf(value, TxFullPolicyRetry, TxFullPolicyDrop)
}

func validateEnvBackend(value string) error {
	return oneOf(value, BackendSim, BackendMMIO)
}

func validateEnvMode(value string) error {
	return oneOf(value, ModePlayback, ModeLoopback, ModeRecord)
}

// validateEnvPath rejects parent directory traversal
func validateEnvPath(value string) error {
	if strings.Contains(filepath.ToSlash(value), "../") {
		return fmt.Errorf("path traversal not allowed")
	}
	return nil
}

func validateEnvListen(value string) error {
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("must be host:port: %w", err)
	}
	return nil
}

func validateEnvDSN(value string) error {
	if !strings.HasPrefix(value, "https://") && !strings.HasPrefix(value, "http://") {
		return fmt.Errorf("must be an http or https URL")
	}
	return nil
}

func oneOf(value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
}
