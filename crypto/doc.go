/*
Package crypto implements the hashing and secp256k1 signature primitives shared
by the vault contract and the off-chain coordinator.

TransactionHash binds calldata to a vault. Owners sign that hash as an EIP-191
personal message and Recover returns the address that produced a signature.
Recovery never checks ownership, that is the job of the quorum evaluation.
*/
package crypto
