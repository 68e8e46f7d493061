package utils

import (
	"testing"

	"bridge-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CIP-19 example addresses.
const (
	mainnetBaseAddr = "addr1qx2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzer3n0d3vllmyqwsx5wktcd8cc3sq835lu7drv2xwl2wywfgse35a3x"
	testnetBaseAddr = "addr_test1qz2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzer3n0d3vllmyqwsx5wktcd8cc3sq835lu7drv2xwl2wywfgs68faae"
)

func TestDecodeBech32(t *testing.T) {
	hrp, payload, err := DecodeBech32(mainnetBaseAddr)
	require.NoError(t, err)
	assert.Equal(t, "addr", hrp)
	// Base address: header byte plus two 28-byte credentials.
	assert.Len(t, payload, 57)

	hrp, _, err = DecodeBech32(testnetBaseAddr)
	require.NoError(t, err)
	assert.Equal(t, "addr_test", hrp)
}

func TestDecodeBech32Rejects(t *testing.T) {
	cases := map[string]string{
		"bad checksum":  mainnetBaseAddr[:len(mainnetBaseAddr)-1] + "q",
		"mixed case":    "Addr1qx2fxv2u",
		"no separator":  "qqqqqqqq",
		"bad character": "addr1qbioqqqqqq",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeBech32(input)
			assert.Error(t, err)
		})
	}
}

func TestCardanoPaymentKeyHash(t *testing.T) {
	keyHash, err := CardanoPaymentKeyHash(mainnetBaseAddr)
	require.NoError(t, err)
	assert.Len(t, keyHash, 28)

	_, err = CardanoPaymentKeyHash("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	assert.Error(t, err, "non-cardano prefix")
}

func TestValidateAddress(t *testing.T) {
	canonical, err := ValidateAddress(models.BlockchainEthereum, "0x00000000219ab540356cBB839Cbe05303d7705Fa")
	require.NoError(t, err)
	assert.Equal(t, "0x00000000219ab540356cbb839cbe05303d7705fa", canonical)

	_, err = ValidateAddress(models.BlockchainEthereum, "0x1234")
	assert.Error(t, err)

	canonical, err = ValidateAddress(models.BlockchainCardano, mainnetBaseAddr)
	require.NoError(t, err)
	assert.Equal(t, mainnetBaseAddr, canonical)

	_, err = ValidateAddress(models.BlockchainCardano, "addr1broken")
	assert.Error(t, err)
}
