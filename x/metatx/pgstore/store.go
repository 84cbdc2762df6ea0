/*
Package pgstore implements metatx.Store on top of PostgreSQL.

Every transaction is a row holding its latest snapshot. Each written snapshot
is also appended to a history table. Updates lock the row and are applied only
if the stored version equals the version the writer read. Changes are
announced with pg_notify and streamed to subscribers using LISTEN.
*/
package pgstore

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/x/metatx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Channel is the notification channel used to announce changes.
const Channel = "msvault_metatx"

const schema = `
CREATE TABLE IF NOT EXISTS metatx_transactions (
	id       BIGSERIAL PRIMARY KEY,
	version  INTEGER NOT NULL,
	vault    BYTEA NOT NULL,
	executed BOOLEAN NOT NULL DEFAULT FALSE,
	record   BYTEA NOT NULL
);
CREATE INDEX IF NOT EXISTS metatx_transactions_vault_idx
	ON metatx_transactions (vault, executed);
CREATE TABLE IF NOT EXISTS metatx_versions (
	id      BIGINT NOT NULL REFERENCES metatx_transactions (id),
	version INTEGER NOT NULL,
	record  BYTEA NOT NULL,
	PRIMARY KEY (id, version)
);
`

// Store is a metatx.Store backed by a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ metatx.Store = (*Store)(nil)

// New returns a store using given pool. Call Migrate before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to the database described by dsn.
func Open(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return New(pool), nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// notification is the payload sent with pg_notify.
type notification struct {
	ID      uint64           `json:"id"`
	Version uint32           `json:"version"`
	Kind    metatx.EventKind `json:"kind"`
}

// Create implements metatx.Store.
func (s *Store) Create(ctx context.Context, tx *metatx.ProposedTransaction) (*metatx.ProposedTransaction, error) {
	if tx.ID != 0 {
		return nil, errors.Wrap(errors.ErrInput, "id is assigned by the store")
	}
	if tx.Version != 0 {
		return nil, errors.Wrap(errors.ErrInput, "version is set on create")
	}
	created := tx.Copy()
	created.Version = 1
	raw, err := encode(created)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(dbtx pgx.Tx) error {
		var id int64
		err := dbtx.QueryRow(ctx,
			`INSERT INTO metatx_transactions (version, vault, executed, record) VALUES ($1, $2, $3, $4) RETURNING id`,
			created.Version, created.Vault.Bytes(), created.Executed(), raw).Scan(&id)
		if err != nil {
			return dbError(err)
		}
		created.ID = uint64(id)
		return s.record(ctx, dbtx, created, raw, metatx.EventCreated)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get implements metatx.Store.
func (s *Store) Get(ctx context.Context, id uint64) (*metatx.ProposedTransaction, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM metatx_transactions WHERE id = $1`, int64(id)).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "transaction %d", id)
	} else if err != nil {
		return nil, dbError(err)
	}
	return decode(id, raw)
}

// Update implements metatx.Store.
func (s *Store) Update(ctx context.Context, tx *metatx.ProposedTransaction) (*metatx.ProposedTransaction, error) {
	next := tx.Copy()
	err := s.inTx(ctx, func(dbtx pgx.Tx) error {
		var raw []byte
		err := dbtx.QueryRow(ctx,
			`SELECT record FROM metatx_transactions WHERE id = $1 FOR UPDATE`, int64(tx.ID)).Scan(&raw)
		if err == pgx.ErrNoRows {
			return errors.Wrapf(errors.ErrNotFound, "transaction %d", tx.ID)
		} else if err != nil {
			return dbError(err)
		}
		prev, err := decode(tx.ID, raw)
		if err != nil {
			return err
		}
		if prev.Version != next.Version {
			return errors.Wrapf(errors.ErrConflict,
				"transaction %d: read version %d, latest is %d", tx.ID, next.Version, prev.Version)
		}
		if err := metatx.CheckUpdate(prev, next); err != nil {
			return err
		}

		next.Version++
		if raw, err = encode(next); err != nil {
			return err
		}
		tag, err := dbtx.Exec(ctx,
			`UPDATE metatx_transactions SET version = $1, executed = $2, record = $3 WHERE id = $4 AND version = $5`,
			next.Version, next.Executed(), raw, int64(next.ID), prev.Version)
		if err != nil {
			return dbError(err)
		}
		if tag.RowsAffected() != 1 {
			return errors.Wrapf(errors.ErrConflict, "transaction %d changed", tx.ID)
		}
		kind := metatx.EventUpdated
		if next.Executed() {
			kind = metatx.EventExecuted
		}
		return s.record(ctx, dbtx, next, raw, kind)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// List implements metatx.Store.
func (s *Store) List(ctx context.Context, f metatx.Filter) ([]*metatx.ProposedTransaction, error) {
	if err := f.State.Validate(); err != nil {
		return nil, err
	}
	var vault []byte
	if f.Vault != (common.Address{}) {
		vault = f.Vault.Bytes()
	}
	var executed *bool
	switch f.State {
	case metatx.StatePending:
		executed = new(bool)
	case metatx.StateExecuted:
		v := true
		executed = &v
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, record FROM metatx_transactions
		WHERE ($1::bytea IS NULL OR vault = $1) AND ($2::boolean IS NULL OR executed = $2)
		ORDER BY id`, vault, executed)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var res []*metatx.ProposedTransaction
	for rows.Next() {
		var (
			id  int64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, dbError(err)
		}
		tx, err := decode(uint64(id), raw)
		if err != nil {
			return nil, err
		}
		res = append(res, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return res, nil
}

// version returns the stored snapshot of given version.
func (s *Store) version(ctx context.Context, id uint64, version uint32) (*metatx.ProposedTransaction, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM metatx_versions WHERE id = $1 AND version = $2`, int64(id), version).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "transaction %d version %d", id, version)
	} else if err != nil {
		return nil, dbError(err)
	}
	return decode(id, raw)
}

// record appends the snapshot to the history and announces the change. The
// notification is delivered when the database transaction commits.
func (s *Store) record(ctx context.Context, dbtx pgx.Tx, tx *metatx.ProposedTransaction, raw []byte, kind metatx.EventKind) error {
	_, err := dbtx.Exec(ctx,
		`INSERT INTO metatx_versions (id, version, record) VALUES ($1, $2, $3)`,
		int64(tx.ID), tx.Version, raw)
	if err != nil {
		return dbError(err)
	}
	payload, err := json.Marshal(notification{ID: tx.ID, Version: tx.Version, Kind: kind})
	if err != nil {
		return errors.Wrap(errors.ErrHuman, err.Error())
	}
	if _, err := dbtx.Exec(ctx, `SELECT pg_notify($1, $2)`, Channel, string(payload)); err != nil {
		return dbError(err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return dbError(err)
	}
	defer dbtx.Rollback(ctx)

	if err := fn(dbtx); err != nil {
		return err
	}
	if err := dbtx.Commit(ctx); err != nil {
		return dbError(err)
	}
	return nil
}

func encode(tx *metatx.ProposedTransaction) ([]byte, error) {
	if err := tx.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid model")
	}
	raw, err := tx.Marshal()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrModel, "marshal: %s", err)
	}
	return raw, nil
}

func decode(id uint64, raw []byte) (*metatx.ProposedTransaction, error) {
	tx := &metatx.ProposedTransaction{ID: id}
	if err := tx.Unmarshal(raw); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "transaction %d: %s", id, err)
	}
	return tx, nil
}

func dbError(err error) error {
	return errors.Wrap(errors.ErrDatabase, err.Error())
}

func parseNotification(payload string) (notification, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return n, errors.Wrapf(errors.ErrInput, "notification %s: %s", strconv.Quote(payload), err)
	}
	if n.ID == 0 || n.Version == 0 {
		return n, errors.Wrapf(errors.ErrInput, "notification %s: missing reference", strconv.Quote(payload))
	}
	return n, nil
}
