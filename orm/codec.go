package orm

import (
	amino "github.com/tendermint/go-amino"
)

// cdc serializes stored records. Records are plain structs, no interfaces
// are registered.
var cdc = amino.NewCodec()

// MarshalRecord returns the binary representation of a record struct.
func MarshalRecord(record interface{}) ([]byte, error) {
	return cdc.MarshalBinaryBare(record)
}

// UnmarshalRecord decodes raw into the record struct ptr points to.
func UnmarshalRecord(raw []byte, ptr interface{}) error {
	return cdc.UnmarshalBinaryBare(raw, ptr)
}
