package metatx

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/x/multisig"
	"github.com/iov-one/msvault/x/vault"
	"github.com/tendermint/tendermint/libs/log"
)

// Config tunes the Coordinator.
type Config struct {
	// ConflictRetries is how many times an operation rejected with
	// ErrConflict is repeated on fresh data.
	ConflictRetries uint
	// ConflictBackoff is the pause before each repetition.
	ConflictBackoff time.Duration
	// VerifyHash compares the locally computed transaction hash with the
	// one the vault derives when a transaction is proposed or amended.
	VerifyHash bool
	// VerifySignatures asks the vault to recover every new confirmation in
	// addition to the local recovery.
	VerifySignatures bool
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the configuration used when none is provided.
func DefaultConfig() Config {
	return Config{
		ConflictRetries: 1,
		ConflictBackoff: 10 * time.Millisecond,
		VerifyHash:      true,
	}
}

// Validate returns an error if the configuration cannot be used.
func (c Config) Validate() error {
	var errs error
	if c.ConflictRetries > 100 {
		errs = errors.Append(errs, errors.Field("ConflictRetries", errors.ErrInput, "must not exceed 100"))
	}
	if c.ConflictBackoff < 0 || c.ConflictBackoff > time.Minute {
		errs = errors.Append(errs, errors.Field("ConflictBackoff", errors.ErrInput, "must be within [0, 1m]"))
	}
	return errs
}

// Coordinator runs the transaction lifecycle against a store and the vaults
// the transactions belong to.
type Coordinator struct {
	store  Store
	vaults vault.Connector
	conf   Config
	logger log.Logger
}

// NewCoordinator returns a coordinator. A nil logger disables logging.
func NewCoordinator(st Store, vaults vault.Connector, conf Config, logger log.Logger) (*Coordinator, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Coordinator{
		store:  st,
		vaults: vaults,
		conf:   conf,
		logger: logger.With("module", "metatx"),
	}, nil
}

// WithLogger sets the logger used by the coordinator.
func (c *Coordinator) WithLogger(logger log.Logger) {
	c.logger = logger.With("module", "metatx")
}

func (c *Coordinator) now() msvault.UnixTime {
	return msvault.AsUnixTime(c.conf.Now())
}

// Propose creates a pending transaction of given vault.
func (c *Coordinator) Propose(ctx context.Context, vaultAddr common.Address, msg ProposeMsg) (res *ProposedTransaction, err error) {
	defer func(start time.Time) {
		observe(c.logger, "propose", start, err, false, "vault", vaultAddr.Hex(), "id", idOf(res))
	}(time.Now())

	v, vs, err := c.vaultState(ctx, vaultAddr)
	if err != nil {
		return nil, err
	}
	tx, err := Propose(vs, msg, c.now())
	if err != nil {
		return nil, err
	}
	if err := c.verifyHash(ctx, v, tx); err != nil {
		return nil, err
	}
	return c.store.Create(ctx, tx)
}

// ProposeAndConfirm proposes a transaction and confirms it with the
// signature of its creator. If the confirmation fails, the created pending
// transaction is returned together with the error.
func (c *Coordinator) ProposeAndConfirm(ctx context.Context, vaultAddr common.Address, msg ProposeMsg, sig []byte) (*ProposedTransaction, error) {
	tx, err := c.Propose(ctx, vaultAddr, msg)
	if err != nil {
		return nil, err
	}
	confirmed, err := c.Confirm(ctx, tx.ID, msg.Creator, sig)
	if err != nil {
		return tx, err
	}
	return confirmed, nil
}

// Confirm attaches the confirmation of signer.
func (c *Coordinator) Confirm(ctx context.Context, id uint64, signer common.Address, sig []byte) (res *ProposedTransaction, err error) {
	defer func(start time.Time) {
		observe(c.logger, "confirm", start, err, false, "id", id, "signer", signer.Hex())
	}(time.Now())

	return c.update(ctx, "confirm", id, true, func(l loaded) (*ProposedTransaction, error) {
		next, err := Confirm(l.state, l.tx, signer, sig)
		if err != nil {
			return nil, err
		}
		if c.conf.VerifySignatures {
			got, err := l.vault.Recover(ctx, l.tx.Hash, sig)
			if err != nil {
				return nil, errors.Wrap(err, "vault recover")
			}
			if got != signer {
				return nil, errors.Wrapf(errors.ErrInvalidSignature, "vault recovered %s", got.Hex())
			}
		}
		return next, nil
	})
}

// Revoke removes the confirmation of signer.
func (c *Coordinator) Revoke(ctx context.Context, id uint64, signer common.Address) (res *ProposedTransaction, err error) {
	defer func(start time.Time) {
		observe(c.logger, "revoke", start, err, false, "id", id, "signer", signer.Hex())
	}(time.Now())

	return c.update(ctx, "revoke", id, true, func(l loaded) (*ProposedTransaction, error) {
		return Revoke(l.state, l.tx, signer)
	})
}

// Amend replaces the calldata of a transaction nobody confirmed yet. Only the
// creator may amend.
func (c *Coordinator) Amend(ctx context.Context, id uint64, caller common.Address, data []byte) (res *ProposedTransaction, err error) {
	defer func(start time.Time) {
		observe(c.logger, "amend", start, err, false, "id", id, "caller", caller.Hex())
	}(time.Now())

	return c.update(ctx, "amend", id, c.conf.VerifyHash, func(l loaded) (*ProposedTransaction, error) {
		if l.tx.Creator != caller {
			return nil, errors.Wrap(errors.ErrUnauthorized, "only the creator can amend")
		}
		next, err := Amend(l.tx, data)
		if err != nil {
			return nil, err
		}
		if l.vault != nil {
			if err := c.verifyHash(ctx, l.vault, next); err != nil {
				return nil, err
			}
		}
		return next, nil
	})
}

// Execute submits a transaction that met the quorum to its vault and records
// the execution. The vault call is never repeated. A failed execution leaves
// the transaction pending.
//
// If the vault executed the transaction but recording it failed, the receipt
// is returned together with the error.
func (c *Coordinator) Execute(ctx context.Context, id uint64, caller common.Address) (res *ProposedTransaction, receipt *vault.Receipt, err error) {
	defer func(start time.Time) {
		observe(c.logger, "execute", start, err, false, "id", id, "caller", caller.Hex())
	}(time.Now())

	l, err := c.load(ctx, id, true)
	if err != nil {
		return nil, nil, err
	}
	if l.tx.Executed() {
		return nil, nil, errors.Wrapf(errors.ErrNotPending, "transaction %d executed at %s", id, l.tx.ExecutedAt)
	}
	if !Actions(l.state, l.tx, caller).CanExecute {
		if !l.state.IsOwner(caller) {
			return nil, nil, errors.Wrapf(errors.ErrNotAnOwner, "caller %s", caller.Hex())
		}
		return nil, nil, errors.Wrapf(errors.ErrQuorum, "%d of %d confirmations",
			multisig.ValidConfirmations(l.state.OwnerSet(), l.tx.Signers), l.state.Threshold)
	}
	sigs, err := ExecutionSignatures(l.state, l.tx)
	if err != nil {
		return nil, nil, err
	}

	execStart := time.Now()
	receipt, err = l.vault.ExecuteTransaction(ctx, l.tx.Calldata, sigs)
	executionMetric.WithLabelValues(result(err)).Observe(time.Since(execStart).Seconds())
	if err != nil {
		return nil, nil, errors.Wrapf(err, "transaction %d", id)
	}

	at := receipt.ConfirmedAt
	if at.IsZero() {
		at = c.now()
	}
	res, err = c.update(ctx, "execute", id, false, func(l loaded) (*ProposedTransaction, error) {
		if l.tx.Executed() {
			if l.tx.ExecutionTx == receipt.TxHash {
				return nil, nil
			}
			return nil, errors.Wrapf(errors.ErrNotPending, "recorded execution %s", l.tx.ExecutionTx.Hex())
		}
		return MarkExecuted(l.tx, at, receipt.TxHash)
	})
	if err != nil {
		c.logger.Error("execution not recorded", "id", id, "executionTx", receipt.TxHash.Hex(), "err", err)
		return nil, receipt, err
	}
	return res, receipt, nil
}

// Status is the view of a transaction from the perspective of one caller.
type Status struct {
	Transaction        *ProposedTransaction    `json:"transaction"`
	Intent             string                  `json:"intent"`
	Vault              *vault.State            `json:"vault"`
	Actions            multisig.Actions        `json:"actions"`
	Confirmations      []multisig.Confirmation `json:"confirmations"`
	ValidConfirmations int                     `json:"validConfirmations"`
}

// Status returns the transaction together with what caller may do with it.
// Caller may be the zero address, then no action is allowed.
func (c *Coordinator) Status(ctx context.Context, id uint64, caller common.Address) (res *Status, err error) {
	defer func(start time.Time) {
		observe(c.logger, "status", start, err, true, "id", id)
	}(time.Now())

	l, err := c.load(ctx, id, true)
	if err != nil {
		return nil, err
	}
	in, err := l.tx.Intent()
	if err != nil {
		return nil, errors.Wrap(err, "stored calldata")
	}
	owners := l.state.OwnerSet()
	return &Status{
		Transaction:        l.tx,
		Intent:             in.Describe(),
		Vault:              l.state,
		Actions:            Actions(l.state, l.tx, caller),
		Confirmations:      multisig.Confirmations(owners, l.tx.Signers),
		ValidConfirmations: multisig.ValidConfirmations(owners, l.tx.Signers),
	}, nil
}

// Get returns the latest snapshot of a transaction.
func (c *Coordinator) Get(ctx context.Context, id uint64) (*ProposedTransaction, error) {
	return c.store.Get(ctx, id)
}

// List returns transactions matching the filter.
func (c *Coordinator) List(ctx context.Context, f Filter) (res []*ProposedTransaction, err error) {
	defer func(start time.Time) {
		observe(c.logger, "list", start, err, true, "vault", f.Vault.Hex(), "state", string(f.State), "count", len(res))
	}(time.Now())
	return c.store.List(ctx, f)
}

// Subscribe streams changes of transactions matching the filter.
func (c *Coordinator) Subscribe(ctx context.Context, f Filter) (<-chan Event, error) {
	return c.store.Subscribe(ctx, f)
}

// VaultState returns the current owners and threshold of a vault.
func (c *Coordinator) VaultState(ctx context.Context, vaultAddr common.Address) (*vault.State, error) {
	_, vs, err := c.vaultState(ctx, vaultAddr)
	return vs, err
}

// loaded is a transaction snapshot together with the vault it belongs to.
// vault and state are nil unless requested.
type loaded struct {
	tx    *ProposedTransaction
	vault vault.Vault
	state *vault.State
}

func (c *Coordinator) load(ctx context.Context, id uint64, withVault bool) (loaded, error) {
	tx, err := c.store.Get(ctx, id)
	if err != nil {
		return loaded{}, err
	}
	l := loaded{tx: tx}
	if withVault {
		if l.vault, l.state, err = c.vaultState(ctx, tx.Vault); err != nil {
			return loaded{}, err
		}
	}
	return l, nil
}

func (c *Coordinator) vaultState(ctx context.Context, addr common.Address) (vault.Vault, *vault.State, error) {
	v, err := c.vaults.Vault(ctx, addr)
	if err != nil {
		return nil, nil, err
	}
	vs, err := v.State(ctx)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "vault %s", addr.Hex())
	}
	return v, vs, nil
}

func (c *Coordinator) verifyHash(ctx context.Context, v vault.Vault, tx *ProposedTransaction) error {
	if !c.conf.VerifyHash {
		return nil
	}
	h, err := v.GetTransactionHash(ctx, tx.Calldata)
	if err != nil {
		return errors.Wrap(err, "vault hash")
	}
	if h != tx.Hash {
		return errors.Wrapf(errors.ErrHashMismatch, "local %s, vault %s", tx.Hash.Hex(), h.Hex())
	}
	return nil
}

// update runs a read-modify-write cycle. fn receives the latest snapshot and
// returns the next one, or nil if nothing needs to be written. The cycle is
// repeated when the write conflicts with a concurrent update.
func (c *Coordinator) update(ctx context.Context, op string, id uint64, withVault bool, fn func(loaded) (*ProposedTransaction, error)) (*ProposedTransaction, error) {
	var res *ProposedTransaction
	err := retry.Do(func() error {
		l, err := c.load(ctx, id, withVault)
		if err != nil {
			return err
		}
		next, err := fn(l)
		if err != nil {
			return err
		}
		if next == nil {
			res = l.tx
			return nil
		}
		res, err = c.store.Update(ctx, next)
		if errors.IsRetryable(err) {
			conflictsMetric.WithLabelValues(op).Inc()
			c.logger.Debug("conflicting update", "op", op, "id", id, "version", next.Version)
		}
		return err
	},
		retry.Attempts(c.conf.ConflictRetries+1),
		retry.Delay(c.conf.ConflictBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(errors.IsRetryable),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func idOf(tx *ProposedTransaction) uint64 {
	if tx == nil {
		return 0
	}
	return tx.ID
}
