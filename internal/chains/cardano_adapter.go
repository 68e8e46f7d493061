package chains

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CardanoAdapter drives the Cardano side through the wallet backend API.
// Cardano is UTXO-based, so writes go through a wallet service that builds,
// signs and submits the native-asset transactions.
type CardanoAdapter struct {
	baseURL    string
	httpClient *http.Client
}

func NewCardanoAdapter(walletAPIURL string) *CardanoAdapter {
	return &CardanoAdapter{
		baseURL: walletAPIURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (a *CardanoAdapter) Name() models.BlockchainName { return models.BlockchainCardano }

type cardanoTipResponse struct {
	BlockHeight uint64 `json:"block_height"`
}

type cardanoTxResponse struct {
	TxHash        string `json:"tx_hash"`
	BlockHeight   uint64 `json:"block_height"`
	Confirmations int64  `json:"confirmations"`
	Events        []struct {
		Operation    string          `json:"operation"`
		ConversionID string          `json:"conversion_id"`
		Quantity     decimal.Decimal `json:"quantity"`
		Address      string          `json:"address"`
	} `json:"events"`
}

type cardanoSubmitRequest struct {
	Operation    string          `json:"operation"`
	PolicyID     string          `json:"policy_id"`
	Address      string          `json:"address"`
	Quantity     decimal.Decimal `json:"quantity"`
	ConversionID string          `json:"conversion_id"`
}

type cardanoSubmitResponse struct {
	TxHash string `json:"tx_hash"`
}

type cardanoBalanceResponse struct {
	Quantity decimal.Decimal `json:"quantity"`
}

type cardanoDeriveRequest struct {
	Key string `json:"key"`
}

type cardanoDeriveResponse struct {
	Address string `json:"address"`
}

func (a *CardanoAdapter) CurrentBlock(ctx context.Context) (uint64, error) {
	var tip cardanoTipResponse
	if err := a.get(ctx, "/v1/chain/tip", &tip); err != nil {
		return 0, err
	}
	return tip.BlockHeight, nil
}

func (a *CardanoAdapter) Confirmations(ctx context.Context, txHash string) (int64, error) {
	tx, err := a.transaction(ctx, txHash)
	if err != nil {
		return 0, err
	}
	return tx.Confirmations, nil
}

func (a *CardanoAdapter) ConversionEvents(ctx context.Context, txHash string, decimals int32) ([]ConversionEvent, error) {
	tx, err := a.transaction(ctx, txHash)
	if err != nil {
		return nil, err
	}
	events := make([]ConversionEvent, 0, len(tx.Events))
	for _, raw := range tx.Events {
		// Quantities arrive in the asset's smallest unit.
		events = append(events, ConversionEvent{
			TxHash:       txHash,
			Operation:    models.TxOperation(raw.Operation),
			ConversionID: raw.ConversionID,
			Amount:       raw.Quantity.Shift(-decimals),
			TokenHolder:  raw.Address,
		})
	}
	return events, nil
}

func (a *CardanoAdapter) Mint(ctx context.Context, action BridgeAction) (string, error) {
	return a.submit(ctx, "MINT", action)
}

func (a *CardanoAdapter) Burn(ctx context.Context, action BridgeAction) (string, error) {
	return a.submit(ctx, "BURN", action)
}

func (a *CardanoAdapter) submit(ctx context.Context, operation string, action BridgeAction) (string, error) {
	request := cardanoSubmitRequest{
		Operation:    operation,
		PolicyID:     action.TokenContract,
		Address:      action.Address,
		Quantity:     action.Amount.Shift(action.Decimals),
		ConversionID: action.ConversionID,
	}
	var response cardanoSubmitResponse
	if err := a.post(ctx, "/v1/transactions", request, &response); err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{
		"chain":         models.BlockchainCardano,
		"operation":     operation,
		"conversion_id": action.ConversionID,
		"tx_hash":       response.TxHash,
	}).Info("submitted bridge transaction")
	return response.TxHash, nil
}

func (a *CardanoAdapter) BridgeBalance(ctx context.Context, tokenContract string, decimals int32) (decimal.Decimal, error) {
	var balance cardanoBalanceResponse
	if err := a.get(ctx, "/v1/bridge/balance?policy_id="+tokenContract, &balance); err != nil {
		return decimal.Zero, err
	}
	return balance.Quantity.Shift(-decimals), nil
}

// DeriveDepositAddress asks the wallet backend for the escrow address bound
// to a wallet pair key. The derivation is deterministic on the wallet side,
// so repeated calls return the same address.
func (a *CardanoAdapter) DeriveDepositAddress(ctx context.Context, walletPairKey string) (string, error) {
	var response cardanoDeriveResponse
	if err := a.post(ctx, "/v1/addresses/derive", cardanoDeriveRequest{Key: walletPairKey}, &response); err != nil {
		return "", err
	}
	return response.Address, nil
}

func (a *CardanoAdapter) transaction(ctx context.Context, txHash string) (*cardanoTxResponse, error) {
	var tx cardanoTxResponse
	if err := a.get(ctx, "/v1/transactions/"+txHash, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (a *CardanoAdapter) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeChainUnavailable, "failed to build wallet api request")
	}
	return a.do(req, out)
}

func (a *CardanoAdapter) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeChainUnavailable, "failed to encode wallet api request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeChainUnavailable, "failed to build wallet api request")
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *CardanoAdapter) do(req *http.Request, out interface{}) error {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeChainUnavailable, "cardano wallet api unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.Retryable(apperrors.CodeTransactionNotFound,
			"resource %s not yet visible on cardano", req.URL.Path)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.Internal(apperrors.CodeChainUnavailable,
			"cardano wallet api returned %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.CodeChainUnavailable, fmt.Sprintf("failed to decode wallet api response from %s", req.URL.Path))
	}
	return nil
}
