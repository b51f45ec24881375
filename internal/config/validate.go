package config

import (
	"fmt"
	"strings"
)

// Validate checks business rules on a loaded configuration. Load calls it.
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
		if c.Database.MaxConns <= 0 {
			return fmt.Errorf("database.max_conns must be > 0 (got %d)", c.Database.MaxConns)
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q (got %q)", DriverMemory, DriverPostgres, c.Storage.Driver)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Holds.OnlineTTL <= 0 {
		return fmt.Errorf("holds.online_ttl must be > 0 (got %s)", c.Holds.OnlineTTL)
	}
	if c.Holds.CashTTL <= 0 {
		return fmt.Errorf("holds.cash_ttl must be > 0 (got %s)", c.Holds.CashTTL)
	}
	if c.Holds.AdminTTL <= 0 {
		return fmt.Errorf("holds.admin_ttl must be > 0 (got %s)", c.Holds.AdminTTL)
	}
	if c.Holds.SweepBatch <= 0 {
		return fmt.Errorf("holds.sweep_batch must be > 0 (got %d)", c.Holds.SweepBatch)
	}

	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be > 0 (got %s)", c.Sweeper.Interval)
	}

	return nil
}
