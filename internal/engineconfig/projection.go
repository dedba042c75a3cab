package engineconfig

import (
	"time"

	"github.com/dogmatiq/ferrite"
	"github.com/dogmatiq/ledger/projection"
)

var projectionBatchSize = ferrite.
	Signed[int]("LEDGER_PROJECTION_BATCH_SIZE", "the maximum number of events loaded by each projection poll").
	WithDefault(projection.DefaultBatchSize).
	WithMinimum(1).
	Required(ferrite.WithRegistry(FerriteRegistry))

var projectionPollInterval = ferrite.
	Duration("LEDGER_PROJECTION_POLL_INTERVAL", "the interval between polls for new events").
	WithDefault(projection.DefaultPollInterval).
	WithMinimum(time.Millisecond).
	Required(ferrite.WithRegistry(FerriteRegistry))

func (c *Config) finalizeProjections() {
	if c.Projections.BatchSize == 0 {
		if c.UseEnv {
			c.Projections.BatchSize = projectionBatchSize.Value()
		} else {
			c.Projections.BatchSize = projection.DefaultBatchSize
		}
	}

	if c.Projections.PollInterval == 0 {
		if c.UseEnv {
			c.Projections.PollInterval = projectionPollInterval.Value()
		} else {
			c.Projections.PollInterval = projection.DefaultPollInterval
		}
	}

	if c.Projections.BatchSize < 0 {
		panic("projection batch size must be positive")
	}

	if c.Projections.PollInterval < 0 {
		panic("projection poll interval must be positive")
	}
}
