package services

import (
	"context"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/models"
	"bridge-backend/internal/repository"

	"github.com/shopspring/decimal"
)

// ActivityEvent describes the next on-chain operation a conversion is
// waiting for. A nil event means every expected operation has been observed
// and the conversion can finalize.
type ActivityEvent struct {
	BlockchainName models.BlockchainName `json:"blockchain_name"`
	NetworkID      string                `json:"blockchain_network_id"`
	ConversionID   string                `json:"conversion_id"`
	TxAmount       decimal.Decimal       `json:"tx_amount"`
	TxOperation    models.TxOperation    `json:"tx_operation"`
	TokenID        uint                  `json:"-"`
}

// Matches reports structural equality with another event. Amounts compare
// by value, so "1.0" matches "1.000".
func (a *ActivityEvent) Matches(other *ActivityEvent) bool {
	return other != nil &&
		a.BlockchainName == other.BlockchainName &&
		a.ConversionID == other.ConversionID &&
		a.TxOperation == other.TxOperation &&
		a.TxAmount.Equal(other.TxAmount)
}

type expectedStep struct {
	token     models.Token
	operation models.TxOperation
	amount    decimal.Decimal
}

// ActivityEventEngine derives the expected event sequence of a conversion
// and walks it against the recorded transactions.
type ActivityEventEngine struct {
	walletPairRepo repository.WalletPairRepository
	tokenPairRepo  repository.TokenPairRepository
}

func NewActivityEventEngine(walletPairRepo repository.WalletPairRepository, tokenPairRepo repository.TokenPairRepository) *ActivityEventEngine {
	return &ActivityEventEngine{walletPairRepo: walletPairRepo, tokenPairRepo: tokenPairRepo}
}

// NextEvent validates the recorded transactions against the canonical
// sequence and returns the first unconsumed step, or nil when the sequence
// is exhausted.
//
// The walk is positional on creation order: transaction i must match step i
// exactly. Any divergence means the bookkeeping itself is corrupt, which is
// fatal rather than recoverable. transactions must be ordered by id.
func (e *ActivityEventEngine) NextEvent(ctx context.Context, conversion *models.Conversion, transactions []*models.Transaction) (*ActivityEvent, error) {
	steps, err := e.expectedSequence(ctx, conversion)
	if err != nil {
		return nil, err
	}

	if len(transactions) > len(steps) {
		return nil, apperrors.Internal(apperrors.CodeTransactionWronglyCreated,
			"conversion %s has %d transactions but expects at most %d",
			conversion.ConversionID, len(transactions), len(steps))
	}
	for i, tx := range transactions {
		step := steps[i]
		if tx.Operation != step.operation || tx.TokenID != step.token.ID {
			return nil, apperrors.Internal(apperrors.CodeTransactionWronglyCreated,
				"conversion %s transaction %d is %s on token %d, expected %s on token %d",
				conversion.ConversionID, i, tx.Operation, tx.TokenID, step.operation, step.token.ID)
		}
	}

	if len(transactions) == len(steps) {
		return nil, nil
	}
	next := steps[len(transactions)]
	return &ActivityEvent{
		BlockchainName: next.token.Blockchain.Name,
		NetworkID:      next.token.Blockchain.NetworkID,
		ConversionID:   conversion.ConversionID,
		TxAmount:       next.amount,
		TxOperation:    next.operation,
		TokenID:        next.token.ID,
	}, nil
}

// expectedSequence builds the canonical step list for a conversion's chain
// pair.
//
// EVM deposit sides burn in one observable transaction. Cardano deposit
// sides first receive into the escrow address and the backend burns
// afterwards, so an extra TOKEN_RECEIVED step precedes the burn. The amount
// side flips at the chain crossing: source steps carry DepositAmount,
// destination steps carry ClaimAmount. Cardano to Cardano is unsupported.
func (e *ActivityEventEngine) expectedSequence(ctx context.Context, conversion *models.Conversion) ([]expectedStep, error) {
	walletPair, err := e.walletPairRepo.GetByID(ctx, conversion.WalletPairID)
	if err != nil {
		return nil, err
	}
	tokenPair, err := e.tokenPairRepo.GetByID(ctx, walletPair.TokenPairID)
	if err != nil {
		return nil, err
	}

	fromChain := tokenPair.FromToken.Blockchain.Name
	toChain := tokenPair.ToToken.Blockchain.Name

	switch {
	case fromChain.IsEVM():
		return []expectedStep{
			{token: tokenPair.FromToken, operation: models.OperationTokenBurnt, amount: conversion.DepositAmount},
			{token: tokenPair.ToToken, operation: models.OperationTokenMinted, amount: conversion.ClaimAmount},
		}, nil
	case fromChain == models.BlockchainCardano && toChain.IsEVM():
		return []expectedStep{
			{token: tokenPair.FromToken, operation: models.OperationTokenReceived, amount: conversion.DepositAmount},
			{token: tokenPair.FromToken, operation: models.OperationTokenBurnt, amount: conversion.DepositAmount},
			{token: tokenPair.ToToken, operation: models.OperationTokenMinted, amount: conversion.ClaimAmount},
		}, nil
	default:
		return nil, apperrors.BadRequest(apperrors.CodeUnsupportedChainPair,
			"conversions from %s to %s are not supported", fromChain, toChain)
	}
}
