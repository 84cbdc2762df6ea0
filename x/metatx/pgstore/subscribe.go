package pgstore

import (
	"context"

	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/x/metatx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendermint/tendermint/libs/log"
)

// Subscribe implements metatx.Store. Every subscription holds one pool
// connection for as long as it is active.
func (s *Store) Subscribe(ctx context.Context, f metatx.Filter) (<-chan metatx.Event, error) {
	return s.SubscribeWithLogger(ctx, f, log.NewNopLogger())
}

// SubscribeWithLogger works like Subscribe and reports dropped notifications
// to given logger.
func (s *Store) SubscribeWithLogger(ctx context.Context, f metatx.Filter, logger log.Logger) (<-chan metatx.Event, error) {
	if err := f.State.Validate(); err != nil {
		return nil, err
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, dbError(err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, dbError(err)
	}

	ch := make(chan metatx.Event, metatx.DefaultFeedBuffer)
	go s.listen(ctx, conn, f, ch, logger.With("module", "pgstore"))
	return ch, nil
}

func (s *Store) listen(ctx context.Context, conn *pgxpool.Conn, f metatx.Filter, ch chan<- metatx.Event, logger log.Logger) {
	defer close(ch)
	defer func() {
		// The connection goes back to the pool, it must not keep listening.
		if _, err := conn.Exec(context.Background(), "UNLISTEN *"); err != nil {
			logger.Error("cannot unlisten", "err", err)
			conn.Conn().Close(context.Background())
		}
		conn.Release()
	}()

	for {
		msg, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("notifications interrupted", "err", err)
			}
			return
		}
		n, err := parseNotification(msg.Payload)
		if err != nil {
			logger.Error("malformed notification", "err", err)
			continue
		}
		tx, err := s.version(ctx, n.ID, n.Version)
		if err != nil {
			if !errors.ErrNotFound.Is(err) {
				logger.Error("cannot load notified transaction", "id", n.ID, "version", n.Version, "err", err)
				return
			}
			continue
		}
		ev := metatx.Event{Kind: n.Kind, Transaction: tx}
		if !f.MatchEvent(ev) {
			continue
		}
		select {
		case ch <- ev:
		default:
			logger.Info("subscriber too slow, closing", "id", n.ID)
			return
		}
	}
}
