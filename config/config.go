// Package config holds the daemon configuration: explicit values, defaults
// and validation, no global state.
package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/vocdoni/zkpool/types"
)

// Config contains the pool daemon parameters.
type Config struct {
	// DataDir is the directory holding the database and the circuit keys.
	DataDir string
	// DBType is the key-value database backend (pebble by default).
	DBType string
	// Host and Port bind the HTTP API server.
	Host string
	Port int
	// TreeDepth is the depth of the commitment accumulator; capacity is
	// 2^TreeDepth deposits. It must match the depth the circuit keys were
	// generated for.
	TreeDepth int
	// Denomination is the fixed unit amount of every deposit and withdrawal,
	// in base units.
	Denomination *big.Int
	// SequencerTick is how often the settlement worker polls the queue.
	SequencerTick time.Duration
	// LogLevel is one of debug, info, warn, error, fatal.
	LogLevel string
	// LogOutput is stdout, stderr or a file path.
	LogOutput string
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() *Config {
	return &Config{
		DataDir:       ".zkpool",
		DBType:        "pebble",
		Host:          "0.0.0.0",
		Port:          8080,
		TreeDepth:     types.DefaultTreeDepth,
		Denomination:  new(big.Int).Set(types.DefaultDenomination),
		SequencerTick: 500 * time.Millisecond,
		LogLevel:      "info",
		LogOutput:     "stdout",
	}
}

// Validate checks the configuration ranges.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in [1, 65535], got %d", c.Port)
	}
	if c.TreeDepth < 1 || c.TreeDepth > types.MaxTreeDepth {
		return fmt.Errorf("tree depth must be in [1, %d], got %d", types.MaxTreeDepth, c.TreeDepth)
	}
	if c.Denomination == nil || c.Denomination.Sign() <= 0 {
		return fmt.Errorf("denomination must be positive")
	}
	if c.SequencerTick <= 0 {
		return fmt.Errorf("sequencer tick must be positive")
	}
	return nil
}
