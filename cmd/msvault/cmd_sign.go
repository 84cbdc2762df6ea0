package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault/crypto"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/x/multisig"
)

func cmdHash(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Read hex encoded calldata from the input and print the transaction hash that
owners of given vault sign to confirm it.
`)
		fl.PrintDefaults()
	}
	var (
		vaultFl = flAddress(fl, "vault", env("MSVAULT_VAULT", ""),
			"Address of the vault executing the calldata. You can use MSVAULT_VAULT environment variable to set it.")
	)
	fl.Parse(args)

	if *vaultFl == (common.Address{}) {
		return fmt.Errorf("vault address is required")
	}
	data, err := readHex(input)
	if err != nil {
		return err
	}
	return writeHex(output, crypto.TransactionHash(*vaultFl, data).Bytes())
}

func cmdSign(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Read a hex encoded transaction hash from the input and print the confirmation
signature created with your private key. The signature is the same a wallet
creates when asked to sign the hash as a message.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", defaultKeyPath(),
			"Path to the private key file. You can use MSVAULT_KEY environment variable to set it.")
	)
	fl.Parse(args)

	raw, err := readHex(input)
	if err != nil {
		return err
	}
	if len(raw) != common.HashLength {
		return fmt.Errorf("hash must be %d bytes, got %d", common.HashLength, len(raw))
	}
	key, err := crypto.LoadKey(*keyPathFl)
	if err != nil {
		return err
	}
	sig, err := key.SignHash(common.BytesToHash(raw))
	if err != nil {
		return err
	}
	return writeHex(output, sig)
}

func cmdRecover(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Read hex encoded signatures, one per line, and print the address that created
each of them. Ownership is not checked.
`)
		fl.PrintDefaults()
	}
	var (
		hashFl = flHash(fl, "hash", "Transaction hash that was signed.")
	)
	fl.Parse(args)

	if *hashFl == (common.Hash{}) {
		return fmt.Errorf("hash is required")
	}
	sigs, err := readHexLines(input)
	if err != nil {
		return err
	}
	for i, sig := range sigs {
		addr, err := crypto.Recover(*hashFl, sig)
		if err != nil {
			return errors.Wrapf(err, "signature %d", i)
		}
		if _, err := fmt.Fprintln(output, addr.Hex()); err != nil {
			return err
		}
	}
	return nil
}

func cmdOrder(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Read hex encoded signatures, one per line, and print them in the order the
vault requires for execution: ascending by the address of the signer.
`)
		fl.PrintDefaults()
	}
	var (
		hashFl    = flHash(fl, "hash", "Transaction hash that was signed.")
		signersFl = fl.Bool("signers", false, "Print the signer address next to each signature.")
	)
	fl.Parse(args)

	if *hashFl == (common.Hash{}) {
		return fmt.Errorf("hash is required")
	}
	sigs, err := readHexLines(input)
	if err != nil {
		return err
	}
	ordered, signers, err := multisig.OrderedSigners(sigs, *hashFl)
	if err != nil {
		return err
	}
	for i, sig := range ordered {
		if *signersFl {
			_, err = fmt.Fprintf(output, "%s 0x%x\n", signers[i].Hex(), sig)
		} else {
			_, err = fmt.Fprintf(output, "0x%x\n", sig)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
