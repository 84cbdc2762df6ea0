package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/iov-one/msvault/crypto"
)

func cmdKeygen(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Generate a new secp256k1 private key for development use.

When successful a new file with the hex encoded private key is created and the
address is printed. This command fails if the private key file already exists.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", defaultKeyPath(),
			"Path to the private key file. You can use MSVAULT_KEY environment variable to set it.")
	)
	fl.Parse(args)

	if _, err := os.Stat(*keyPathFl); !os.IsNotExist(err) {
		// Do not allow to overwrite already existing private key. User
		// must manually delete it first.
		return fmt.Errorf("private key file %q already exists, delete this file and try again", *keyPathFl)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("cannot generate key: %s", err)
	}
	if err := key.Save(*keyPathFl); err != nil {
		return err
	}
	_, err = fmt.Fprintln(output, key.Address().Hex())
	return err
}

func cmdKeyaddr(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print out the address controlled by your private key.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", defaultKeyPath(),
			"Path to the private key file. You can use MSVAULT_KEY environment variable to set it.")
	)
	fl.Parse(args)

	key, err := crypto.LoadKey(*keyPathFl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(output, key.Address().Hex())
	return err
}
