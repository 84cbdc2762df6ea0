package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/iov-one/msvault"
)

type addressValue struct {
	addr *common.Address
}

func (v addressValue) String() string {
	if v.addr == nil || *v.addr == (common.Address{}) {
		return ""
	}
	return v.addr.Hex()
}

func (v addressValue) Set(raw string) error {
	a, err := msvault.ParseAddress(raw)
	if err != nil {
		return err
	}
	*v.addr = a
	return nil
}

// flAddress returns a value that is being initialized with given default value
// and optionally overwritten by a command line argument if provided. This
// function follows Go's flag package convention.
// If given value cannot be deserialized to required type, process is
// terminated.
func flAddress(fl *flag.FlagSet, name, defaultVal, usage string) *common.Address {
	var a common.Address
	if defaultVal != "" {
		var err error
		a, err = msvault.ParseAddress(defaultVal)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot parse %q address flag value. %s", name, err)
			os.Exit(2)
		}
	}
	fl.Var(addressValue{addr: &a}, name, usage)
	return &a
}

type hashValue struct {
	hash *common.Hash
}

func (v hashValue) String() string {
	if v.hash == nil || *v.hash == (common.Hash{}) {
		return ""
	}
	return v.hash.Hex()
}

func (v hashValue) Set(raw string) error {
	b, err := hexutil.Decode(raw)
	if err != nil {
		return err
	}
	if len(b) != common.HashLength {
		return fmt.Errorf("hash must be %d bytes, got %d", common.HashLength, len(b))
	}
	*v.hash = common.BytesToHash(b)
	return nil
}

// flHash returns a 32 byte hash value set by a 0x prefixed hex command line
// argument. The zero hash is returned if the flag was not provided.
func flHash(fl *flag.FlagSet, name, usage string) *common.Hash {
	var h common.Hash
	fl.Var(hashValue{hash: &h}, name, usage)
	return &h
}
