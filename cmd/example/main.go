package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dogmatiq/ledger"
	"github.com/dogmatiq/ledger/marshaling"
	"github.com/dogmatiq/ledger/persistence/driver/memory"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	"github.com/dogmatiq/ledger/projection"
	"github.com/dogmatiq/ledger/session"
	"golang.org/x/sync/errgroup"
)

type account struct {
	ID      eventstore.StreamID
	Owner   string
	Balance int64
}

type accountOpened struct {
	AccountID string
	Owner     string
}

type fundsDeposited struct {
	AccountID string
	Amount    int64
}

type fundsWithdrawn struct {
	AccountID string
	Amount    int64
}

type balance struct {
	Owner  string
	Amount int64
}

func main() {
	logger := slog.New(
		slog.NewJSONHandler(
			os.Stdout,
			&slog.HandlerOptions{
				Level: slog.LevelDebug,
			},
		),
	)

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	if err := run(ctx, logger); err != nil && ctx.Err() == nil {
		logger.Error("example failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	m := &marshaling.Marshaler{}
	marshaling.Register[accountOpened](m, "account.opened")
	marshaling.Register[fundsDeposited](m, "funds.deposited")
	marshaling.Register[fundsWithdrawn](m, "funds.withdrawn")

	options := []ledger.EngineOption{
		ledger.WithOptionsFromEnvironment(),
		ledger.WithLogger(logger),
	}

	if os.Getenv("LEDGER_EVENTSTORE_DSN") == "" {
		options = append(options, ledger.WithEventStore(&memory.EventStore{}))
	}

	if os.Getenv("LEDGER_KV_DSN") == "" {
		options = append(options, ledger.WithKeyValueStore(&memory.KeyValueStore{}))
	}

	e, err := ledger.New(ctx, m, options...)
	if err != nil {
		return err
	}
	defer e.Close()

	balances, err := ledger.RegisterAsync(
		ctx,
		e,
		projection.NewDescriptor(
			"balances",
			"account.opened",
			"funds.deposited",
			"funds.withdrawn",
		),
		balanceProjection(),
	)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.Run(ctx)
	})

	g.Go(func() error {
		b := behaviors()

		if err := openAccounts(ctx, e, b); err != nil {
			return err
		}

		from, to := "acct-alice", "acct-bob"

		for {
			if err := transfer(ctx, e, b, from, to, 10); err != nil {
				return err
			}
			from, to = to, from

			for _, id := range []string{"acct-alice", "acct-bob"} {
				res, err := balances.Query(ctx, id)
				if err != nil {
					return err
				}

				logger.InfoContext(
					ctx,
					"queried balance",
					slog.String("account_id", id),
					slog.String("owner", res.Value.Owner),
					slog.Int64("amount", res.Value.Amount),
					slog.Bool("stale", res.IsStale),
				)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	})

	return g.Wait()
}

func behaviors() *session.Behaviors {
	b := &session.Behaviors{}

	session.OnCreate(
		b,
		"account.opened",
		func(id eventstore.StreamID, ev accountOpened) (*account, error) {
			return &account{ID: id, Owner: ev.Owner}, nil
		},
	)

	session.OnApply(
		b,
		"funds.deposited",
		func(a *account, ev fundsDeposited) (*account, error) {
			a.Balance += ev.Amount
			return a, nil
		},
	)

	session.OnApply(
		b,
		"funds.withdrawn",
		func(a *account, ev fundsWithdrawn) (*account, error) {
			if ev.Amount > a.Balance {
				return nil, fmt.Errorf("insufficient funds in %s", a.ID)
			}
			a.Balance -= ev.Amount
			return a, nil
		},
	)

	return b
}

func balanceProjection() projection.Funcs[string, balance] {
	return projection.Funcs[string, balance]{
		ExtractKeyFunc: func(event any) (string, error) {
			switch ev := event.(type) {
			case accountOpened:
				return ev.AccountID, nil
			case fundsDeposited:
				return ev.AccountID, nil
			case fundsWithdrawn:
				return ev.AccountID, nil
			default:
				return "", fmt.Errorf("unexpected event type %T", event)
			}
		},
		ApplyFunc: func(m balance, event any) (balance, error) {
			switch ev := event.(type) {
			case accountOpened:
				m.Owner = ev.Owner
			case fundsDeposited:
				m.Amount += ev.Amount
			case fundsWithdrawn:
				m.Amount -= ev.Amount
			}
			return m, nil
		},
	}
}

func openAccounts(ctx context.Context, e *ledger.Engine, b *session.Behaviors) error {
	s := e.NewSession(b)

	for _, owner := range []string{"alice", "bob"} {
		id := "acct-" + owner
		sid := eventstore.StreamID(id)

		_, err := session.Load[*account](ctx, s, sid)
		if err == nil {
			continue
		}

		if !errors.As(err, new(*eventstore.StreamNotFoundError)) {
			return err
		}

		if _, err := session.Start[*account](s, sid, accountOpened{id, owner}); err != nil {
			return err
		}

		if err := s.Append(sid, fundsDeposited{id, 1000}); err != nil {
			return err
		}
	}

	return s.Commit(ctx)
}

func transfer(
	ctx context.Context,
	e *ledger.Engine,
	b *session.Behaviors,
	from, to string,
	amount int64,
) error {
	s := e.NewSession(
		b,
		session.WithMetadata(map[string]string{
			"transfer_from": from,
			"transfer_to":   to,
		}),
	)

	for _, id := range []string{from, to} {
		if _, err := session.Load[*account](ctx, s, eventstore.StreamID(id)); err != nil {
			return err
		}
	}

	if err := s.Append(eventstore.StreamID(from), fundsWithdrawn{from, amount}); err != nil {
		return err
	}

	if err := s.Append(eventstore.StreamID(to), fundsDeposited{to, amount}); err != nil {
		return err
	}

	return s.Commit(ctx)
}
