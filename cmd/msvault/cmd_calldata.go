package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/iov-one/msvault/calldata"
)

func cmdEncode(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Create calldata of a vault method that can be proposed.

For transferFunds provide the recipient and the amount in ether. For addSigner
and removeSigner provide the signer and either the new threshold or the
current threshold together with -follow, which moves the threshold together
with the size of the owner set.
`)
		fl.PrintDefaults()
	}
	var (
		methodFl    = fl.String("method", string(calldata.TransferFunds), "Vault method, one of transferFunds, addSigner or removeSigner.")
		recipientFl = flAddress(fl, "recipient", "", "Recipient of the transferred funds.")
		amountFl    = fl.String("amount", "", "Transferred amount in ether, for example 0.25.")
		weiFl       = fl.Bool("wei", false, "Amount is given in wei instead of ether.")
		signerFl    = flAddress(fl, "signer", "", "Owner that is added or removed.")
		thresholdFl = fl.Uint64("threshold", 0, "Confirmations required after the owner change.")
		followFl    = fl.Bool("follow", false, "Derive the new threshold from -threshold, the current one, by adding or removing one.")
	)
	fl.Parse(args)

	m, err := calldata.ParseMethod(*methodFl)
	if err != nil {
		return err
	}

	var p calldata.Params
	switch m {
	case calldata.TransferFunds:
		amount, err := parseAmount(*amountFl, *weiFl)
		if err != nil {
			return err
		}
		p = &calldata.TransferParams{Recipient: *recipientFl, Amount: amount}
	default:
		threshold := *thresholdFl
		if *followFl {
			if threshold, err = calldata.NextThreshold(m, threshold, true); err != nil {
				return err
			}
		}
		p = &calldata.SignerParams{Signer: *signerFl, NewThreshold: threshold}
	}

	data, err := calldata.Encode(m, p)
	if err != nil {
		return err
	}
	return writeHex(output, data)
}

func cmdDecode(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Read hex encoded calldata from the input and print the method it calls
together with its arguments. The input is rejected unless it is the canonical
encoding of one of the proposable vault methods.
`)
		fl.PrintDefaults()
	}
	fl.Parse(args)

	data, err := readHex(input)
	if err != nil {
		return err
	}
	in, err := calldata.Decode(data)
	if err != nil {
		return err
	}
	if t := in.Transfer(); t != nil {
		_, err = fmt.Fprintf(output, "%s\n  (%s ether)\n", in.Describe(), calldata.FormatEther(t.Amount))
		return err
	}
	_, err = fmt.Fprintln(output, in.Describe())
	return err
}
