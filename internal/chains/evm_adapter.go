package chains

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// bridgeABI covers the converter bridge contract surface the backend
// reads and writes.
const bridgeABIJSON = `[
	{"type":"event","name":"ConversionOut","inputs":[
		{"name":"conversionId","type":"bytes32","indexed":true},
		{"name":"tokenHolder","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"ConversionIn","inputs":[
		{"name":"conversionId","type":"bytes32","indexed":true},
		{"name":"tokenHolder","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"function","name":"mintFor","inputs":[
		{"name":"token","type":"address"},
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"conversionId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"burnFor","inputs":[
		{"name":"token","type":"address"},
		{"name":"from","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"conversionId","type":"bytes32"}],"outputs":[]}
]`

const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

// EVMAdapter talks to an account-based EVM chain (Ethereum, Binance).
type EVMAdapter struct {
	name           models.BlockchainName
	client         *ethclient.Client
	chainID        *big.Int
	bridgeContract common.Address
	privateKey     *ecdsa.PrivateKey
	bridgeABI      abi.ABI
	erc20ABI       abi.ABI
}

// NewEVMAdapter dials the RPC endpoint and prepares the signing key.
func NewEVMAdapter(name models.BlockchainName, rpcEndpoint, bridgeContract, privateKeyHex string, chainID int64) (*EVMAdapter, error) {
	client, err := ethclient.Dial(rpcEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s rpc: %w", name, err)
	}

	parsedBridgeABI, err := abi.JSON(strings.NewReader(bridgeABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bridge ABI: %w", err)
	}
	parsedERC20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}

	adapter := &EVMAdapter{
		name:           name,
		client:         client,
		chainID:        big.NewInt(chainID),
		bridgeContract: common.HexToAddress(bridgeContract),
		bridgeABI:      parsedBridgeABI,
		erc20ABI:       parsedERC20ABI,
	}
	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid %s private key: %w", name, err)
		}
		adapter.privateKey = key
	}
	return adapter, nil
}

func (a *EVMAdapter) Name() models.BlockchainName { return a.name }

func (a *EVMAdapter) CurrentBlock(ctx context.Context) (uint64, error) {
	block, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeChainUnavailable, fmt.Sprintf("%s rpc unavailable", a.name))
	}
	return block, nil
}

func (a *EVMAdapter) Confirmations(ctx context.Context, txHash string) (int64, error) {
	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if err == ethereum.NotFound {
			return 0, apperrors.Retryable(apperrors.CodeTransactionNotFound,
				"transaction %s not yet visible on %s", txHash, a.name)
		}
		return 0, apperrors.Wrap(err, apperrors.CodeChainUnavailable, fmt.Sprintf("%s receipt lookup failed", a.name))
	}
	current, err := a.CurrentBlock(ctx)
	if err != nil {
		return 0, err
	}
	confirmations := int64(current) - receipt.BlockNumber.Int64()
	if confirmations < 0 {
		confirmations = 0
	}
	return confirmations, nil
}

func (a *EVMAdapter) ConversionEvents(ctx context.Context, txHash string, decimals int32) ([]ConversionEvent, error) {
	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if err == ethereum.NotFound {
			return nil, apperrors.Retryable(apperrors.CodeTransactionNotFound,
				"transaction %s not yet visible on %s", txHash, a.name)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeChainUnavailable, fmt.Sprintf("%s receipt lookup failed", a.name))
	}

	var events []ConversionEvent
	for _, logEntry := range receipt.Logs {
		if logEntry.Address != a.bridgeContract || len(logEntry.Topics) < 3 {
			continue
		}
		var operation models.TxOperation
		switch logEntry.Topics[0] {
		case a.bridgeABI.Events["ConversionOut"].ID:
			operation = models.OperationTokenBurnt
		case a.bridgeABI.Events["ConversionIn"].ID:
			operation = models.OperationTokenMinted
		default:
			continue
		}
		amount := new(big.Int).SetBytes(logEntry.Data)
		events = append(events, ConversionEvent{
			TxHash:       txHash,
			Operation:    operation,
			ConversionID: decodeConversionID(logEntry.Topics[1]),
			Amount:       fromBaseUnits(amount, decimals),
			TokenHolder:  strings.ToLower(common.HexToAddress(logEntry.Topics[2].Hex()).Hex()),
		})
	}
	return events, nil
}

func (a *EVMAdapter) Mint(ctx context.Context, action BridgeAction) (string, error) {
	return a.submit(ctx, "mintFor", action)
}

func (a *EVMAdapter) Burn(ctx context.Context, action BridgeAction) (string, error) {
	return a.submit(ctx, "burnFor", action)
}

func (a *EVMAdapter) submit(ctx context.Context, method string, action BridgeAction) (string, error) {
	if a.privateKey == nil {
		return "", apperrors.Internal(apperrors.CodeChainUnavailable, "no signing key configured for %s", a.name)
	}

	var conversionID [32]byte
	copy(conversionID[:], []byte(action.ConversionID))
	callData, err := a.bridgeABI.Pack(method,
		common.HexToAddress(action.TokenContract),
		common.HexToAddress(action.Address),
		toBaseUnits(action.Amount, action.Decimals),
		conversionID,
	)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeChainUnavailable, "failed to pack "+method)
	}

	from := crypto.PubkeyToAddress(a.privateKey.PublicKey)
	nonce, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeChainUnavailable, "failed to fetch nonce")
	}
	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeChainUnavailable, "failed to fetch gas price")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &a.bridgeContract,
		Value:    big.NewInt(0),
		Gas:      300000,
		GasPrice: gasPrice,
		Data:     callData,
	})
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.privateKey)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeChainUnavailable, "failed to sign transaction")
	}
	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeChainUnavailable, "failed to send transaction")
	}

	txHash := signedTx.Hash().Hex()
	logrus.WithFields(logrus.Fields{
		"chain":         a.name,
		"method":        method,
		"conversion_id": action.ConversionID,
		"tx_hash":       txHash,
	}).Info("submitted bridge transaction")
	return txHash, nil
}

func (a *EVMAdapter) BridgeBalance(ctx context.Context, tokenContract string, decimals int32) (decimal.Decimal, error) {
	callData, err := a.erc20ABI.Pack("balanceOf", a.bridgeContract)
	if err != nil {
		return decimal.Zero, apperrors.Wrap(err, apperrors.CodeChainUnavailable, "failed to pack balanceOf")
	}
	token := common.HexToAddress(tokenContract)
	result, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		return decimal.Zero, apperrors.Wrap(err, apperrors.CodeChainUnavailable, "balanceOf call failed")
	}
	return fromBaseUnits(new(big.Int).SetBytes(result), decimals), nil
}

// decodeConversionID recovers the UUID string packed into an indexed
// bytes32 topic, dropping zero padding.
func decodeConversionID(topic common.Hash) string {
	raw := topic.Bytes()
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end])
}

// fromBaseUnits converts an on-chain integer amount to its decimal value.
func fromBaseUnits(amount *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(amount, 0).Shift(-decimals)
}

// toBaseUnits converts a decimal amount to on-chain integer units.
func toBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).BigInt()
}
