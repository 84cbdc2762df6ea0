/*
Package orm provides an easy to use db wrapper for storing versioned entities.

Break state space into prefixed sections called Buckets. Each bucket keeps a
sequence to assign identifiers and stores every entity as a series of
immutable versions. An update never overwrites a version, it appends the next
one and succeeds only when the updated snapshot was derived from the latest
stored version. This gives optimistic concurrency control to the entity
owners.
*/
package orm
