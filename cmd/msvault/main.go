/*
Msvault is an offline tool for preparing and checking vault transactions.

Every command reads its input from stdin and writes its result to stdout, so
that commands can be combined into a pipeline. Binary values are hex encoded,
one per line. For example, to sign a transfer:

	$ msvault encode -method transferFunds -recipient 0x... -amount 0.5 \
		| msvault hash -vault 0x... \
		| msvault sign -key owner.key
*/
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// commands is a register of all available commands. The name is matched with
// the first argument given.
//
// A command function is given stdin, stdout and the command line arguments
// without the program name and the command name. It must read and write only
// to provided input and output.
var commands = map[string]func(input io.Reader, output io.Writer, args []string) error{
	"decode":  cmdDecode,
	"encode":  cmdEncode,
	"hash":    cmdHash,
	"keyaddr": cmdKeyaddr,
	"keygen":  cmdKeygen,
	"order":   cmdOrder,
	"recover": cmdRecover,
	"sign":    cmdSign,
	"version": cmdVersion,
}

func main() {
	if len(os.Args) == 1 {
		fmt.Fprintf(os.Stderr, "%s prepares and verifies multisig vault transactions.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s <command> [<flags>]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nAvailable commands are:\n\t%s\n", strings.Join(availableCmds(), "\n\t"))
		fmt.Fprintf(os.Stderr, "Run '%s <command> -help' to learn more about each command.\n", os.Args[0])
		os.Exit(2)
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "\nAvailable commands are:\n\t%s\n", strings.Join(availableCmds(), "\n\t"))
		os.Exit(2)
	}

	if err := run(os.Stdin, os.Stdout, os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func availableCmds() []string {
	available := make([]string, 0, len(commands))
	for name := range commands {
		available = append(available, name)
	}
	sort.Strings(available)
	return available
}

func cmdVersion(in io.Reader, out io.Writer, args []string) error {
	fmt.Fprintln(out, gitHash)
	return nil
}

// gitHash is set during the compilation time.
var gitHash string = "dev"
