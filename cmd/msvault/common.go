package main

import (
	"bufio"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/iov-one/msvault/calldata"
)

// readHexLines reads all non empty lines of input, each holding a hex encoded
// value. The 0x prefix is optional.
func readHexLines(input io.Reader) ([][]byte, error) {
	var res [][]byte
	sc := bufio.NewScanner(input)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		b, err := decodeHex(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s", n, err)
		}
		res = append(res, b)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cannot read input: %s", err)
	}
	return res, nil
}

// readHex reads exactly one hex encoded value from input.
func readHex(input io.Reader) ([]byte, error) {
	values, err := readHexLines(input)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("want one hex value as input, got %d", len(values))
	}
	return values[0], nil
}

func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func writeHex(output io.Writer, b []byte) error {
	_, err := fmt.Fprintln(output, hexutil.Encode(b))
	return err
}

func parseAmount(raw string, wei bool) (*big.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("amount is required")
	}
	if !wei {
		return calldata.ParseEther(raw)
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount %q", raw)
	}
	return n, nil
}
