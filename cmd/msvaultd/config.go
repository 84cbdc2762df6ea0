package main

import (
	"reflect"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault"
	"github.com/iov-one/msvault/calldata"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/x/metatx"
	"github.com/iov-one/msvault/x/vault"
)

// configuration is read from the environment. Every variable is prefixed
// with MSVAULT_.
type configuration struct {
	HTTP     string `env:"MSVAULT_HTTP" envDefault:":8000"`
	LogLevel string `env:"MSVAULT_LOG_LEVEL" envDefault:"info"`

	Storage struct {
		// Backend is one of memory, bolt or postgres.
		Backend          string `env:"MSVAULT_STORAGE" envDefault:"memory"`
		BoltPath         string `env:"MSVAULT_BOLT_PATH" envDefault:"msvault.db"`
		PostgresDSN      string `env:"MSVAULT_POSTGRES_DSN"`
		PostgresMaxConns int    `env:"MSVAULT_POSTGRES_MAX_CONNS" envDefault:"8"`
	}

	Vault struct {
		// Backend is one of memory or ethereum.
		Backend string `env:"MSVAULT_VAULT_BACKEND" envDefault:"memory"`
		RPC     string `env:"MSVAULT_ETH_RPC"`
		ChainID int64  `env:"MSVAULT_ETH_CHAIN_ID"`
		// ExecutorKey is a key file of the account paying for executions.
		// Without it vaults are read only.
		ExecutorKey string `env:"MSVAULT_EXECUTOR_KEY"`

		// A vault registered with the memory backend on start.
		DevVault     address     `env:"MSVAULT_DEV_VAULT"`
		DevOwners    addressList `env:"MSVAULT_DEV_VAULT_OWNERS"`
		DevThreshold uint64      `env:"MSVAULT_DEV_VAULT_THRESHOLD" envDefault:"1"`
		DevBalance   string      `env:"MSVAULT_DEV_VAULT_BALANCE" envDefault:"0"`
	}

	Coordinator struct {
		ConflictRetries  uint          `env:"MSVAULT_CONFLICT_RETRIES" envDefault:"1"`
		ConflictBackoff  time.Duration `env:"MSVAULT_CONFLICT_BACKOFF" envDefault:"10ms"`
		VerifyHash       bool          `env:"MSVAULT_VERIFY_HASH" envDefault:"true"`
		VerifySignatures bool          `env:"MSVAULT_VERIFY_SIGNATURES" envDefault:"false"`
	}
}

type address common.Address

type addressList []common.Address

// loadConfiguration parses given environment. When environ is nil, the
// process environment is used.
func loadConfiguration(environ map[string]string) (configuration, error) {
	var conf configuration
	funcs := map[reflect.Type]env.ParserFunc{
		reflect.TypeOf(address{}): func(v string) (interface{}, error) {
			a, err := msvault.ParseAddress(v)
			return address(a), err
		},
		reflect.TypeOf(addressList{}): func(v string) (interface{}, error) {
			list, err := msvault.ParseAddresses(v)
			return addressList(list), err
		},
	}
	if err := env.ParseWithFuncs(&conf, funcs, env.Options{Environment: environ}); err != nil {
		return conf, errors.Wrap(errors.ErrInput, err.Error())
	}
	return conf, conf.Validate()
}

// Validate returns an error if the configuration cannot be used to start
// the daemon.
func (c *configuration) Validate() error {
	var errs error
	if c.HTTP == "" {
		errs = errors.AppendField(errs, "HTTP", errors.ErrEmpty)
	}
	switch c.LogLevel {
	case "debug", "info", "error", "none":
	default:
		errs = errors.Append(errs, errors.Field("LogLevel", errors.ErrInput, "unknown level %q", c.LogLevel))
	}

	switch c.Storage.Backend {
	case "memory":
	case "bolt":
		if c.Storage.BoltPath == "" {
			errs = errors.AppendField(errs, "Storage.BoltPath", errors.ErrEmpty)
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = errors.AppendField(errs, "Storage.PostgresDSN", errors.ErrEmpty)
		}
	default:
		errs = errors.Append(errs, errors.Field("Storage.Backend", errors.ErrInput, "unknown backend %q", c.Storage.Backend))
	}

	switch c.Vault.Backend {
	case "memory":
		if c.Vault.DevVault != (address{}) {
			st := c.devVaultState()
			errs = errors.AppendField(errs, "Vault.DevVault", st.Validate())
			if _, err := calldata.ParseEther(c.Vault.DevBalance); err != nil {
				errs = errors.AppendField(errs, "Vault.DevBalance", err)
			}
		}
	case "ethereum":
		if c.Vault.RPC == "" {
			errs = errors.AppendField(errs, "Vault.RPC", errors.ErrEmpty)
		}
		if c.Vault.ExecutorKey != "" && c.Vault.ChainID <= 0 {
			errs = errors.Append(errs, errors.Field("Vault.ChainID", errors.ErrInput, "required to sign executions"))
		}
	default:
		errs = errors.Append(errs, errors.Field("Vault.Backend", errors.ErrInput, "unknown backend %q", c.Vault.Backend))
	}

	errs = errors.Append(errs, c.coordinatorConfig().Validate())
	return errs
}

func (c *configuration) devVaultState() *vault.State {
	return &vault.State{
		Address:   common.Address(c.Vault.DevVault),
		Owners:    c.Vault.DevOwners,
		Threshold: c.Vault.DevThreshold,
	}
}

func (c *configuration) coordinatorConfig() metatx.Config {
	conf := metatx.DefaultConfig()
	conf.ConflictRetries = c.Coordinator.ConflictRetries
	conf.ConflictBackoff = c.Coordinator.ConflictBackoff
	conf.VerifyHash = c.Coordinator.VerifyHash
	conf.VerifySignatures = c.Coordinator.VerifySignatures
	return conf
}
