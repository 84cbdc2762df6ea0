/*
Package vault binds the on-chain multisig vault contract.

The coordinator reads the owner set and threshold of a vault, compares its own
transaction hash with the one the vault derives and finally submits an
execution carrying the ordered signatures. Vault abstracts those calls.

EthVault talks to a deployed contract through go-ethereum bindings.
SimulatedVault reproduces the contract checks in memory for tests and
development setups without a chain.
*/
package vault
