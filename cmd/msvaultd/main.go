/*
Msvaultd serves the transaction coordinator over HTTP.

All configuration is read from environment variables, see configuration
for the full list. By default transactions are kept in memory and vaults are
simulated, which is useful for development only.
*/
package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/iov-one/msvault/calldata"
	"github.com/iov-one/msvault/crypto"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/store"
	"github.com/iov-one/msvault/x/metatx"
	"github.com/iov-one/msvault/x/metatx/pgstore"
	"github.com/iov-one/msvault/x/vault"
	"github.com/tendermint/tendermint/libs/log"
)

func main() {
	conf, err := loadConfiguration(nil)
	if err != nil {
		fmt.Printf("Error: %+v\n\n", err)
		os.Exit(2)
	}
	logger, err := newLogger(os.Stdout, conf.LogLevel)
	if err != nil {
		fmt.Printf("Error: %+v\n\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, logger); err != nil {
		logger.Error("daemon stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level string) (log.Logger, error) {
	logger := log.NewTMLogger(log.NewSyncWriter(w))
	opt, err := log.AllowLevel(level)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return log.NewFilter(logger, opt).With("module", "msvaultd"), nil
}

func run(ctx context.Context, conf configuration, logger log.Logger) error {
	st, closeStore, err := openStore(ctx, conf, logger)
	if err != nil {
		return errors.Wrap(err, "store")
	}
	defer closeStore()

	vaults, err := openVaults(ctx, conf)
	if err != nil {
		return errors.Wrap(err, "vaults")
	}

	coordinator, err := metatx.NewCoordinator(st, vaults, conf.coordinatorConfig(), logger)
	if err != nil {
		return err
	}

	app := newApp(coordinator, logger)
	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()

	logger.Info("listening",
		"addr", conf.HTTP,
		"storage", conf.Storage.Backend,
		"vaults", conf.Vault.Backend)
	if err := app.Listen(conf.HTTP); err != nil {
		return fmt.Errorf("http server: %s", err)
	}
	return nil
}

func openStore(ctx context.Context, conf configuration, logger log.Logger) (metatx.Store, func(), error) {
	switch conf.Storage.Backend {
	case "memory":
		return metatx.NewBucketStore(store.NewMemStore()), func() {}, nil
	case "bolt":
		db, err := store.OpenBoltStore(conf.Storage.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.Error("cannot close database", "path", conf.Storage.BoltPath, "err", err)
			}
		}
		return metatx.NewBucketStore(db), closeDB, nil
	case "postgres":
		pg, err := pgstore.Open(ctx, conf.Storage.PostgresDSN, conf.Storage.PostgresMaxConns)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return &loggingPgStore{Store: pg, logger: logger}, pg.Close, nil
	}
	return nil, nil, errors.Wrapf(errors.ErrInput, "unknown storage %q", conf.Storage.Backend)
}

// loggingPgStore reports problems of notification streams to the daemon
// logger.
type loggingPgStore struct {
	*pgstore.Store
	logger log.Logger
}

func (s *loggingPgStore) Subscribe(ctx context.Context, f metatx.Filter) (<-chan metatx.Event, error) {
	return s.Store.SubscribeWithLogger(ctx, f, s.logger)
}

func openVaults(ctx context.Context, conf configuration) (vault.Connector, error) {
	switch conf.Vault.Backend {
	case "memory":
		connector := vault.NewSimulatedConnector()
		if conf.Vault.DevVault == (address{}) {
			return connector, nil
		}
		st := conf.devVaultState()
		v, err := vault.NewSimulatedVault(st.Address, st.Owners, st.Threshold, nil)
		if err != nil {
			return nil, err
		}
		balance, err := calldata.ParseEther(conf.Vault.DevBalance)
		if err != nil {
			return nil, err
		}
		v.Fund(balance)
		connector.Register(v)
		return connector, nil
	case "ethereum":
		var auth *bind.TransactOpts
		if conf.Vault.ExecutorKey != "" {
			key, err := crypto.LoadKey(conf.Vault.ExecutorKey)
			if err != nil {
				return nil, err
			}
			auth, err = bind.NewKeyedTransactorWithChainID(key.PrivateKey(), big.NewInt(conf.Vault.ChainID))
			if err != nil {
				return nil, errors.Wrap(errors.ErrInput, err.Error())
			}
		}
		return vault.DialEthConnector(ctx, conf.Vault.RPC, auth)
	}
	return nil, errors.Wrapf(errors.ErrInput, "unknown vault backend %q", conf.Vault.Backend)
}
