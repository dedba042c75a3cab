package engineconfig

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/dogmatiq/ferrite"
	"github.com/dogmatiq/ledger/persistence/driver/aws/dynamodb"
	"github.com/dogmatiq/ledger/persistence/driver/memory"
	natsdriver "github.com/dogmatiq/ledger/persistence/driver/nats"
	"github.com/dogmatiq/ledger/persistence/driver/postgres"
	"github.com/dogmatiq/ledger/persistence/driver/sqlite"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	"github.com/dogmatiq/ledger/persistence/kv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// eventStoreDSN is the DSN describing which event store to use.
var eventStoreDSN = ferrite.
	URL("LEDGER_EVENTSTORE_DSN", "the DSN of the event store").
	Optional(ferrite.WithRegistry(FerriteRegistry))

// keyValueStoreDSN is the DSN describing which key/value store to use.
var keyValueStoreDSN = ferrite.
	URL("LEDGER_KV_DSN", "the DSN of the key/value store").
	Optional(ferrite.WithRegistry(FerriteRegistry))

func (c *Config) finalizePersistence(ctx context.Context) error {
	sqliteDBs := map[string]*sql.DB{}

	if c.UseEnv {
		if c.Persistence.Events == nil {
			if dsn, ok := eventStoreDSN.Value(); ok {
				s, err := c.eventStoreFromDSN(ctx, dsn, sqliteDBs)
				if err != nil {
					return err
				}
				c.Persistence.Events = s
			}
		}

		if c.Persistence.Keyspaces == nil {
			if dsn, ok := keyValueStoreDSN.Value(); ok {
				s, err := c.keyValueStoreFromDSN(ctx, dsn, sqliteDBs)
				if err != nil {
					return err
				}
				c.Persistence.Keyspaces = s
			}
		}
	}

	if c.Persistence.Events == nil {
		panic("no event store is configured, set LEDGER_EVENTSTORE_DSN or provide the WithEventStore() option")
	}

	if c.Persistence.Keyspaces == nil {
		panic("no key/value store is configured, set LEDGER_KV_DSN or provide the WithKeyValueStore() option")
	}

	return nil
}

// eventStoreFromDSN returns the event store described by the given DSN.
func (c *Config) eventStoreFromDSN(
	ctx context.Context,
	dsn *url.URL,
	sqliteDBs map[string]*sql.DB,
) (eventstore.EventStore, error) {
	switch dsn.Scheme {
	case "memory":
		return &memory.EventStore{}, nil

	case "sqlite":
		db, err := c.openSQLite(ctx, dsn, sqliteDBs)
		if err != nil {
			return nil, err
		}
		return &sqlite.EventStore{DB: db}, nil

	default:
		return nil, fmt.Errorf("unsupported event store DSN scheme %q", dsn.Scheme)
	}
}

// keyValueStoreFromDSN returns the key/value store described by the given
// DSN.
func (c *Config) keyValueStoreFromDSN(
	ctx context.Context,
	dsn *url.URL,
	sqliteDBs map[string]*sql.DB,
) (kv.Store, error) {
	switch dsn.Scheme {
	case "memory":
		return &memory.KeyValueStore{}, nil

	case "sqlite":
		db, err := c.openSQLite(ctx, dsn, sqliteDBs)
		if err != nil {
			return nil, err
		}
		return &sqlite.KeyValueStore{DB: db}, nil

	case "postgres", "postgresql":
		db, err := postgres.Open(ctx, dsn.String())
		if err != nil {
			return nil, err
		}
		c.onClose(db.Close)
		return &postgres.KeyValueStore{DB: db}, nil

	case "dynamodb":
		return dynamoDBKeyValueStoreFromDSN(ctx, dsn)

	case "nats":
		conn, err := nats.Connect(dsn.String())
		if err != nil {
			return nil, fmt.Errorf("unable to connect to NATS: %w", err)
		}
		c.onClose(func() error {
			conn.Close()
			return nil
		})

		js, err := jetstream.New(conn)
		if err != nil {
			return nil, fmt.Errorf("unable to access NATS JetStream: %w", err)
		}

		return &natsdriver.KeyValueStore{JetStream: js}, nil

	default:
		return nil, fmt.Errorf("unsupported key/value store DSN scheme %q", dsn.Scheme)
	}
}

// openSQLite opens the SQLite database described by dsn. The event store and
// key/value store share a single database if their DSNs name the same file.
func (c *Config) openSQLite(
	ctx context.Context,
	dsn *url.URL,
	dbs map[string]*sql.DB,
) (*sql.DB, error) {
	path := dsn.Opaque
	if path == "" {
		path = dsn.Path
	}

	if path == "" {
		return nil, fmt.Errorf("sqlite DSN %q does not specify a database path", dsn)
	}

	if db, ok := dbs[path]; ok {
		return db, nil
	}

	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	c.onClose(db.Close)
	dbs[path] = db

	return db, nil
}

// dynamoDBKeyValueStoreFromDSN returns a DynamoDB key/value store described by
// a DSN of the form dynamodb://[key:secret@]table?region=...&endpoint=...
func dynamoDBKeyValueStoreFromDSN(ctx context.Context, dsn *url.URL) (kv.Store, error) {
	table := dsn.Host
	if table == "" {
		return nil, fmt.Errorf("dynamodb DSN %q does not specify a table name", dsn.Redacted())
	}

	q := dsn.Query()
	opts := dynamodb.ClientOptions{
		Region:   q.Get("region"),
		Endpoint: q.Get("endpoint"),
	}

	if dsn.User != nil {
		opts.AccessKeyID = dsn.User.Username()
		opts.SecretAccessKey, _ = dsn.User.Password()
	}

	client, err := dynamodb.NewClient(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("unable to create DynamoDB client: %w", err)
	}

	if err := dynamodb.CreateKeyValueStoreTable(ctx, client, table); err != nil {
		return nil, fmt.Errorf("unable to create DynamoDB table: %w", err)
	}

	return &dynamodb.KeyValueStore{
		Client: client,
		Table:  table,
	}, nil
}
