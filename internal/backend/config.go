package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"kakeibo/internal/amqp"
	"kakeibo/internal/config"
	"kakeibo/internal/ports"
)

// BackendType names a store implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// backendTypes is listed in the order help text shows them.
var backendTypes = []BackendType{SQLiteBackend, MemoryBackend}

func (bt BackendType) String() string { return string(bt) }

func (bt BackendType) IsValid() bool { return slices.Contains(backendTypes, bt) }

// GetBackendTypes returns every supported backend type.
func GetBackendTypes() []BackendType { return slices.Clone(backendTypes) }

// GetBackendTypeStrings is GetBackendTypes for flag help.
func GetBackendTypeStrings() []string {
	out := make([]string, 0, len(backendTypes))
	for _, bt := range backendTypes {
		out = append(out, bt.String())
	}
	return out
}

// Config selects the store and the optional event broker.
type Config struct {
	Type         BackendType
	SQLiteDBPath string
	// SeedFile replaces the embedded catalog when set.
	SeedFile string

	// AMQP works with every store; an empty URL disables events.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig picks the backend fields out of the process config.
func FromAppConfig(c *config.Config) (Config, error) {
	if c == nil {
		return Config{}, errors.New("app config is nil")
	}
	bc := Config{
		Type:         BackendType(c.DataBackend),
		SQLiteDBPath: c.SQLiteDBPath,
		SeedFile:     c.SeedFile,
		AMQPURL:      c.AMQPURL,
		AMQPExchange: c.AMQPExchange,
		AMQPQueue:    c.AMQPQueue,
	}
	if !bc.Type.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", c.DataBackend)
	}
	return bc, nil
}

func (c Config) Validate() error {
	switch {
	case !c.Type.IsValid():
		return fmt.Errorf("invalid backend type: %s", c.Type)
	case c.Type == SQLiteBackend && c.SQLiteDBPath == "":
		return errors.New("sqlite backend needs a database path")
	case c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == ""):
		return errors.New("AMQP exchange and queue are required when an AMQP URL is set")
	}
	return nil
}

// CleanupFunc releases what a backend holds.
type CleanupFunc func() error

// BackendResult is an opened backend. Events is nil when AMQP is off or
// the broker was unreachable at startup.
type BackendResult struct {
	Store   ports.Store
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// Factory opens backends.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
