package signature

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

// WalletPairMessage is the canonical text a user signs to authorize a
// wallet pair. Both sides sign the same rendering.
func WalletPairMessage(fromAddress, toAddress string, tokenPairID uint, blockNumber uint64) string {
	return fmt.Sprintf("converter:%d:%s:%s:%d", tokenPairID, fromAddress, toAddress, blockNumber)
}

// VerifyEVM recovers the signer of a personal-sign signature and checks it
// matches the expected address.
func VerifyEVM(expectedAddress, message, signatureHex string) error {
	signature, err := hexutil.Decode(signatureHex)
	if err != nil || len(signature) != 65 {
		return apperrors.BadRequest(apperrors.CodeInvalidSignature, "malformed signature")
	}
	// Wallets return V as 27/28, go-ethereum expects 0/1.
	if signature[64] >= 27 {
		signature[64] -= 27
	}

	digest := personalHash(message)
	publicKey, err := crypto.SigToPub(digest, signature)
	if err != nil {
		return apperrors.BadRequest(apperrors.CodeInvalidSignature, "signature recovery failed")
	}
	recovered := crypto.PubkeyToAddress(*publicKey)
	if !strings.EqualFold(recovered.Hex(), expectedAddress) {
		return apperrors.BadRequest(apperrors.CodeInvalidSignature,
			"signature was made by %s, expected %s", recovered.Hex(), expectedAddress)
	}
	return nil
}

// VerifyCardano checks an ed25519 signature and that the public key hashes
// to the payment credential of the expected address.
func VerifyCardano(expectedAddress, message, signatureHex, publicKeyHex string) error {
	signature, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil || len(signature) != ed25519.SignatureSize {
		return apperrors.BadRequest(apperrors.CodeInvalidSignature, "malformed signature")
	}
	publicKey, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return apperrors.BadRequest(apperrors.CodeInvalidSignature, "malformed public key")
	}
	if !ed25519.Verify(publicKey, []byte(message), signature) {
		return apperrors.BadRequest(apperrors.CodeInvalidSignature, "ed25519 verification failed")
	}

	keyHash, err := utils.CardanoPaymentKeyHash(expectedAddress)
	if err != nil {
		return err
	}
	hasher, err := blake2b.New(28, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidSignature, "blake2b init failed")
	}
	hasher.Write(publicKey)
	if !strings.EqualFold(hex.EncodeToString(hasher.Sum(nil)), hex.EncodeToString(keyHash)) {
		return apperrors.BadRequest(apperrors.CodeInvalidSignature,
			"public key does not belong to %s", expectedAddress)
	}
	return nil
}

// ClaimMessage is the canonical text a user signs to claim the destination
// mint of a conversion.
func ClaimMessage(conversionID string, amount decimal.Decimal, fromAddress, toAddress string) string {
	return fmt.Sprintf("claim:%s:%s:%s:%s", conversionID, amount.String(), fromAddress, toAddress)
}

// CheckExpiry rejects signatures made more than window blocks ago.
func CheckExpiry(signedAtBlock, currentBlock, window uint64) error {
	if currentBlock > signedAtBlock && currentBlock-signedAtBlock > window {
		return apperrors.BadRequest(apperrors.CodeSignatureExpired,
			"signature block %d is older than the allowed window of %d blocks", signedAtBlock, window)
	}
	return nil
}

// SignAuthorization produces a backend authorization the user submits to a
// bridge contract, for the origin burn at creation time and the destination
// mint at claim time. The digest binds conversion id, amount and the acting
// address.
func SignAuthorization(privateKey *ecdsa.PrivateKey, conversionID string, amount decimal.Decimal, decimals int32, address string) (string, error) {
	packed := make([]byte, 0, 128)
	packed = append(packed, []byte(conversionID)...)
	packed = append(packed, common.LeftPadBytes(amount.Shift(decimals).BigInt().Bytes(), 32)...)
	packed = append(packed, common.HexToAddress(address).Bytes()...)

	digest := personalHash(string(crypto.Keccak256(packed)))
	signature, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInvalidSignature, "authorization signing failed")
	}
	signature[64] += 27
	return hexutil.Encode(signature), nil
}

func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}
