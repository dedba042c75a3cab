package engineconfig_test

import (
	"context"
	"testing"
	"time"

	. "github.com/dogmatiq/ledger/internal/engineconfig"
	"github.com/dogmatiq/ledger/internal/test"
	"github.com/dogmatiq/ledger/persistence/driver/memory"
	"github.com/dogmatiq/ledger/persistence/driver/sqlite"
	"github.com/dogmatiq/ledger/projection"
	"github.com/google/uuid"
)

type option func(*Config)

func TestNew(t *testing.T) {
	t.Run("it uses defaults when no environment is used", func(t *testing.T) {
		t.Parallel()

		cfg, err := New(
			context.Background(),
			[]option{
				func(c *Config) {
					c.Persistence.Events = &memory.EventStore{}
					c.Persistence.Keyspaces = &memory.KeyValueStore{}
				},
			},
		)
		if err != nil {
			t.Fatal(err)
		}
		defer cfg.Close()

		if cfg.NodeID == uuid.Nil {
			t.Fatal("expected a node ID to be generated")
		}

		test.Expect(t, "unexpected batch size", cfg.Projections.BatchSize, projection.DefaultBatchSize)
		test.Expect(t, "unexpected poll interval", cfg.Projections.PollInterval, projection.DefaultPollInterval)
	})

	t.Run("it panics if no event store is configured", func(t *testing.T) {
		t.Parallel()

		defer func() {
			if recover() == nil {
				t.Fatal("expected a panic")
			}
		}()

		New(
			context.Background(),
			[]option{
				func(c *Config) {
					c.Persistence.Keyspaces = &memory.KeyValueStore{}
				},
			},
		)
	})

	t.Run("it configures stores from the environment", func(t *testing.T) {
		t.Setenv("LEDGER_EVENTSTORE_DSN", "sqlite::memory:")
		t.Setenv("LEDGER_KV_DSN", "sqlite::memory:")
		t.Setenv("LEDGER_PROJECTION_BATCH_SIZE", "25")
		t.Setenv("LEDGER_PROJECTION_POLL_INTERVAL", "250ms")

		nodeID := uuid.New()
		t.Setenv("LEDGER_NODE_ID", nodeID.String())

		cfg, err := New(
			test.ContextWithTimeout(t, 5*time.Second),
			[]option{
				func(c *Config) {
					c.UseEnv = true
				},
			},
		)
		if err != nil {
			t.Fatal(err)
		}
		defer cfg.Close()

		events, ok := cfg.Persistence.Events.(*sqlite.EventStore)
		if !ok {
			t.Fatalf("unexpected event store type: %T", cfg.Persistence.Events)
		}

		keyspaces, ok := cfg.Persistence.Keyspaces.(*sqlite.KeyValueStore)
		if !ok {
			t.Fatalf("unexpected key/value store type: %T", cfg.Persistence.Keyspaces)
		}

		if events.DB != keyspaces.DB {
			t.Fatal("expected stores with the same DSN to share a database")
		}

		test.Expect(t, "unexpected node ID", cfg.NodeID, nodeID)
		test.Expect(t, "unexpected batch size", cfg.Projections.BatchSize, 25)
		test.Expect(t, "unexpected poll interval", cfg.Projections.PollInterval, 250*time.Millisecond)

		t.Run("explicit options take precedence", func(t *testing.T) {
			events := &memory.EventStore{}

			cfg, err := New(
				test.ContextWithTimeout(t, 5*time.Second),
				[]option{
					func(c *Config) {
						c.UseEnv = true
						c.Persistence.Events = events
						c.Projections.BatchSize = 10
					},
				},
			)
			if err != nil {
				t.Fatal(err)
			}
			defer cfg.Close()

			if cfg.Persistence.Events != events {
				t.Fatal("expected the explicit event store to be used")
			}

			test.Expect(t, "unexpected batch size", cfg.Projections.BatchSize, 10)
		})
	})
}
