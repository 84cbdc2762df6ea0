/*
Package metatx coordinates proposed vault transactions between owners.

A ProposedTransaction is created by one owner and collects confirmations
(signatures over its hash) from other owners until the vault threshold is
met. Once enough current owners confirmed, any owner may execute it: the
collected signatures are ordered and submitted to the vault together with the
calldata.

All transitions are pure functions over immutable snapshots. The Coordinator
reads the latest snapshot, applies a transition and writes the result back
with a conditional update. If another writer updated the transaction in the
meantime, the write is rejected with ErrConflict and the whole operation is
repeated on fresh data.
*/
package metatx
