package device

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StorageKey holds the generated console id between runs
const StorageKey = "console_id"

// Store is the key-value storage the resolved id is kept in
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// ConsoleIdentity resolves the id this console reports to the backend
type ConsoleIdentity struct {
	store        Store
	logger       *zap.Logger
	machineFiles []string
	nodeName     func() (string, error)
}

// NewConsoleIdentity creates a new console identity resolver
func NewConsoleIdentity(store Store, logger *zap.Logger) *ConsoleIdentity {
	return &ConsoleIdentity{
		store:        store,
		logger:       logger,
		machineFiles: []string{"/etc/machine-id", "/var/lib/dbus/machine-id"},
		nodeName:     nodeName,
	}
}

// Resolve returns the configured id if set. Otherwise it reuses a previously
// stored id, then tries the machine id and host name, and finally generates a
// uuid. Whatever it picks is stored.
func (c *ConsoleIdentity) Resolve(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	stored, found, err := c.store.Get(StorageKey)
	if err != nil {
		return "", fmt.Errorf("failed to read console id: %w", err)
	}
	if found && stored != "" {
		return stored, nil
	}

	id, source := c.platformID()
	if id == "" {
		id, source = uuid.NewString(), "generated"
	}

	if err := c.store.Set(StorageKey, id); err != nil {
		return "", fmt.Errorf("failed to save console id: %w", err)
	}

	c.logger.Info("Console id assigned",
		zap.String("console_id", id),
		zap.String("source", source),
	)
	return id, nil
}

func (c *ConsoleIdentity) platformID() (string, string) {
	for _, path := range c.machineFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, "machine-id"
		}
	}

	if name, err := c.nodeName(); err == nil && name != "" {
		return "console-" + name, "hostname"
	}
	return "", ""
}
