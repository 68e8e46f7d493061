package utils

import (
	"strings"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// ValidateAddress checks that an address is well-formed for its chain and
// returns the canonical form: lowercase hex for EVM, as-given bech32 for
// Cardano.
func ValidateAddress(chain models.BlockchainName, address string) (string, error) {
	if chain.IsEVM() {
		if !common.IsHexAddress(address) {
			return "", apperrors.BadRequest(apperrors.CodeInvalidAddress,
				"%s is not a valid %s address", address, chain)
		}
		return strings.ToLower(common.HexToAddress(address).Hex()), nil
	}
	if _, _, err := DecodeBech32(address); err != nil {
		return "", apperrors.BadRequest(apperrors.CodeInvalidAddress,
			"%s is not a valid %s address", address, chain)
	}
	return address, nil
}

// CardanoPaymentKeyHash extracts the 28-byte payment credential from a
// Shelley bech32 address. The first payload byte is the header; the payment
// key hash follows.
func CardanoPaymentKeyHash(address string) ([]byte, error) {
	hrp, payload, err := DecodeBech32(address)
	if err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidAddress,
			"%s is not a valid cardano address", address)
	}
	if hrp != "addr" && hrp != "addr_test" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidAddress,
			"unexpected address prefix %s", hrp)
	}
	if len(payload) < 29 {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidAddress,
			"cardano address payload too short")
	}
	return payload[1:29], nil
}
