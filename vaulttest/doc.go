/*
Package vaulttest provides helpers for testing code that coordinates vault
transactions: owner keys, addresses and storage backends.
*/
package vaulttest
