package utils

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math/big"
	"os"
	"strings"

	"github.com/bgentry/speakeasy"
	isatty "github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/util"
)

var logger = util.GetLoggerForModule("cmd")

var buf *bufio.Reader

// GetPassword prompts without echo on a terminal and reads a line otherwise.
func GetPassword(prompt string) (password string, err error) {
	if inputIsTty() {
		password, err = speakeasy.Ask(prompt)
	} else {
		password, err = stdinLine()
	}
	return
}

func GetConfirmation() (confirmation string, err error) {
	confirmation, err = stdinLine()
	return
}

func inputIsTty() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

func stdinLine() (string, error) {
	if buf == nil {
		buf = bufio.NewReader(os.Stdin)
	}
	line, err := buf.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Error prints the message and exits.
func Error(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg, args...)
	os.Exit(1)
}

// PrintJSON prints v indented.
func PrintJSON(v interface{}) {
	formatted, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		Error("Failed to encode result: %v\n", err)
	}
	fmt.Println(string(formatted))
}

// ParseAmount parses a non-negative decimal amount in wei.
func ParseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, errors.Errorf("invalid amount %q", s)
	}
	if amount.Sign() < 0 {
		return nil, errors.Errorf("negative amount %q", s)
	}
	return amount, nil
}

// ParseHashes parses a comma separated list of 0x-prefixed hashes.
func ParseHashes(s string) ([]common.Hash, error) {
	var ret []common.Hash
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		h, err := common.ParseHash(field)
		if err != nil {
			return nil, err
		}
		ret = append(ret, h)
	}
	if len(ret) == 0 {
		return nil, errors.New("no channel id given")
	}
	return ret, nil
}

// ReadJSONArg decodes arg into v. An arg starting with @ names a file to
// read, - reads stdin.
func ReadJSONArg(arg string, v interface{}) error {
	var raw []byte
	var err error
	switch {
	case arg == "-":
		raw, err = ioutil.ReadAll(os.Stdin)
	case strings.HasPrefix(arg, "@"):
		raw, err = ioutil.ReadFile(arg[1:])
	default:
		raw = []byte(arg)
	}
	if err != nil {
		return errors.Wrap(err, "failed to read input")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(err, "failed to decode input")
	}
	return nil
}
