/*
Package multisig implements the quorum rules of a multi-signature vault.

An owner set together with a confirmation threshold decides whether the
collected confirmations of a transaction are enough to execute it. Only
confirmations of current owners count, so the outcome can change when owners
are added or removed even without any confirmation being revoked.

Evaluate returns the actions a given caller is allowed to take on a
transaction. OrderSignatures brings the confirmations into the strictly
ascending signer order required by the vault execution entry point.
*/
package multisig
