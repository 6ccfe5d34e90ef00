package eth

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum"
)

// notFoundPhrases are error texts of RPC providers that answer a missing block, header or
// receipt with an error instead of an empty result.
var notFoundPhrases = []string{
	"block not found",
	"header not found",
	"unknown block",
	"receipt not found",
	"transaction not found",
}

// MaybeAsNotFoundErr joins ethereum.NotFound to err when its text matches a known not-found
// answer. Any other error, and nil, is returned unchanged.
func MaybeAsNotFoundErr(err error) error {
	if err == nil || errors.Is(err, ethereum.NotFound) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range notFoundPhrases {
		if strings.Contains(msg, phrase) {
			return errors.Join(err, ethereum.NotFound)
		}
	}
	return err
}
