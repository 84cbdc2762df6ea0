/*
Package msvault defines the types shared by all packages of the off-chain
multisig vault coordinator, as well as implementations of some of the simpler
components (when interfaces would be too much overhead).

A vault is an on-chain multi-signature contract. Its owners propose
transactions (meta transactions) off-chain, collect signatures over the
transaction hash and, once enough current owners confirmed, submit a single
execution carrying all signatures in the canonical order.

The coordination logic lives in the x/ packages:

  x/multisig  quorum evaluation and canonical signature ordering
  x/metatx    proposed transaction model, lifecycle and coordinator
  x/vault     vault contract collaborator bindings

Calldata encoding is implemented by the calldata package, hashing, signing and
signature recovery by the crypto package.
*/
package msvault
