package services

import (
	"context"
	"testing"
	"time"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/chains"
	"bridge-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcilerFixture struct {
	reconciler   *EventReconciler
	conversions  *fakeConversionRepo
	transactions *fakeTransactionRepo
	walletPairs  *fakeWalletPairRepo
	publisher    *fakePublisher
	notifier     *fakeNotifier
	eth          *fakeAdapter
	bsc          *fakeAdapter
	cardano      *fakeAdapter
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	f := &reconcilerFixture{
		conversions:  newFakeConversionRepo(),
		transactions: newFakeTransactionRepo(),
		walletPairs:  newFakeWalletPairRepo(),
		publisher:    &fakePublisher{},
		notifier:     &fakeNotifier{},
		eth:          newFakeAdapter(models.BlockchainEthereum),
		bsc:          newFakeAdapter(models.BlockchainBinance),
		cardano:      newFakeAdapter(models.BlockchainCardano),
	}

	tokenPairs := &fakeTokenPairRepo{pairs: map[uint]*models.TokenPair{
		1: evmPairFixture(),
		2: cardanoPairFixture(),
	}}
	engine := NewActivityEventEngine(f.walletPairs, tokenPairs)

	policy := ConfirmationPolicy{Interval: time.Millisecond, MaxRetries: 0}
	f.reconciler = NewEventReconciler(
		newFakeBlockchainRepo(), tokenPairs, f.walletPairs,
		f.conversions, f.transactions,
		engine, chains.NewRegistry(f.eth, f.bsc, f.cardano),
		f.publisher, f.notifier,
		map[models.BlockchainName]ConfirmationPolicy{
			models.BlockchainEthereum: policy,
			models.BlockchainBinance:  policy,
			models.BlockchainCardano:  policy,
		},
	)
	return f
}

func (f *reconcilerFixture) createConversion(t *testing.T, tokenPairID uint, depositAddress string) *models.Conversion {
	t.Helper()
	walletPair := &models.WalletPair{TokenPairID: tokenPairID, FromAddress: "from", ToAddress: "to"}
	if depositAddress != "" {
		walletPair.FromAddress = "addr1from"
		walletPair.DepositAddress = &depositAddress
	}
	require.NoError(t, f.walletPairs.Create(context.Background(), walletPair))

	conversion := &models.Conversion{
		ConversionID:  "c-1",
		WalletPairID:  walletPair.ID,
		DepositAmount: decimal.NewFromInt(100),
		ClaimAmount:   decimal.NewFromInt(99),
		FeeAmount:     decimal.NewFromInt(1),
		Status:        models.ConversionStatusUserInitiated,
		CreatedBy:     models.CreatedByDApp,
	}
	require.NoError(t, f.conversions.Create(context.Background(), conversion))
	return conversion
}

func TestProcessChainEventDrivesEVMConversionToClaim(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	conversion := f.createConversion(t, 1, "")

	f.eth.confirmations["0xburn"] = 5
	err := f.reconciler.ProcessChainEvent(ctx, &ChainEvent{
		Blockchain:   models.BlockchainEthereum,
		TxHash:       "0xburn",
		Operation:    models.OperationTokenBurnt,
		ConversionID: "c-1",
		Amount:       decimal.NewFromInt(100),
		TokenHolder:  "from",
	})
	require.NoError(t, err)

	// The destination mint is user-claimed on EVM chains, so the
	// conversion parks instead of publishing a bridge action.
	assert.Equal(t, models.ConversionStatusWaitingForClaim, conversion.Status)
	assert.Empty(t, f.publisher.published)
	assert.Contains(t, f.notifier.updates, models.ConversionStatusProcessing)
	assert.Contains(t, f.notifier.updates, models.ConversionStatusWaitingForClaim)

	recorded, err := f.transactions.GetByHash(ctx, "0xburn")
	require.NoError(t, err)
	require.NotNil(t, recorded)
	assert.Equal(t, models.TransactionSuccess, recorded.Status)
	assert.EqualValues(t, 5, recorded.Confirmation)
}

func TestProcessChainEventFinalizesAfterMint(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	conversion := f.createConversion(t, 1, "")

	f.eth.confirmations["0xburn"] = 5
	require.NoError(t, f.reconciler.ProcessChainEvent(ctx, &ChainEvent{
		Blockchain: models.BlockchainEthereum, TxHash: "0xburn",
		Operation: models.OperationTokenBurnt, ConversionID: "c-1",
		Amount: decimal.NewFromInt(100), TokenHolder: "from",
	}))

	// User claims, then the mint lands on the destination chain.
	conversion.Status = models.ConversionStatusClaimInitiated
	f.bsc.confirmations["0xmint"] = 5
	require.NoError(t, f.reconciler.ProcessChainEvent(ctx, &ChainEvent{
		Blockchain: models.BlockchainBinance, TxHash: "0xmint",
		Operation: models.OperationTokenMinted, ConversionID: "c-1",
		Amount: decimal.NewFromInt(99), TokenHolder: "to",
	}))

	assert.Equal(t, models.ConversionStatusSuccess, conversion.Status)
	for _, group := range f.transactions.groups {
		assert.Equal(t, models.ConversionTransactionSuccess, group.Status)
	}
}

func TestProcessChainEventReplayIsConflict(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.createConversion(t, 1, "")

	event := &ChainEvent{
		Blockchain: models.BlockchainEthereum, TxHash: "0xburn",
		Operation: models.OperationTokenBurnt, ConversionID: "c-1",
		Amount: decimal.NewFromInt(100), TokenHolder: "from",
	}
	f.eth.confirmations["0xburn"] = 5
	require.NoError(t, f.reconciler.ProcessChainEvent(ctx, event))

	err := f.reconciler.ProcessChainEvent(ctx, event)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, apperrors.CodeTransactionAlreadyProcessed, apperrors.CodeOf(err))
}

func TestProcessChainEventRejectsMismatches(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.createConversion(t, 1, "")
	f.eth.confirmations["0xburn"] = 5

	err := f.reconciler.ProcessChainEvent(ctx, &ChainEvent{
		Blockchain: models.BlockchainEthereum, TxHash: "0xburn",
		Operation: models.OperationTokenBurnt, ConversionID: "c-1",
		Amount: decimal.NewFromInt(50), TokenHolder: "from",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeMismatchAmount, apperrors.CodeOf(err))

	err = f.reconciler.ProcessChainEvent(ctx, &ChainEvent{
		Blockchain: models.BlockchainEthereum, TxHash: "0xburn",
		Operation: models.OperationTokenBurnt, ConversionID: "c-1",
		Amount: decimal.NewFromInt(100), TokenHolder: "intruder",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeMismatchTokenHolder, apperrors.CodeOf(err))

	err = f.reconciler.ProcessChainEvent(ctx, &ChainEvent{
		Blockchain: models.BlockchainEthereum, TxHash: "0xburn",
		Operation: models.OperationTokenMinted, ConversionID: "c-1",
		Amount: decimal.NewFromInt(100), TokenHolder: "from",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnexpectedEvent, apperrors.CodeOf(err))
}

func TestProcessChainEventShortConfirmationsIsRetryable(t *testing.T) {
	f := newReconcilerFixture(t)
	f.createConversion(t, 1, "")
	f.eth.confirmations["0xburn"] = 1 // required: 2

	err := f.reconciler.ProcessChainEvent(context.Background(), &ChainEvent{
		Blockchain: models.BlockchainEthereum, TxHash: "0xburn",
		Operation: models.OperationTokenBurnt, ConversionID: "c-1",
		Amount: decimal.NewFromInt(100), TokenHolder: "from",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, apperrors.CodeBlockConfirmationNotEnough, apperrors.CodeOf(err))

	recorded, _ := f.transactions.GetByHash(context.Background(), "0xburn")
	assert.Nil(t, recorded, "nothing recorded until confirmations suffice")
}

func TestProcessChainEventCreatesConversionFromPushDeposit(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	escrow := "addr1escrow"
	walletPair := &models.WalletPair{
		TokenPairID: 2, FromAddress: "addr1from", ToAddress: "0xto", DepositAddress: &escrow,
	}
	require.NoError(t, f.walletPairs.Create(ctx, walletPair))

	f.cardano.confirmations["cardano-tx-1"] = 5
	err := f.reconciler.ProcessChainEvent(ctx, &ChainEvent{
		Blockchain:     models.BlockchainCardano,
		TxHash:         "cardano-tx-1",
		Operation:      models.OperationTokenReceived,
		Amount:         decimal.NewFromInt(42),
		DepositAddress: escrow,
	})
	require.NoError(t, err)

	created, err := f.conversions.FindActiveByWalletPair(ctx, walletPair.ID)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, models.CreatedByBackend, created.CreatedBy)
	assert.True(t, created.DepositAmount.Equal(decimal.NewFromInt(42)))
	assert.Equal(t, models.ConversionStatusProcessing, created.Status)

	// The Cardano burn is backend-driven: a bridge action goes out.
	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, models.BlockchainCardano, f.publisher.published[0].BlockchainName)
	assert.Equal(t, models.OperationTokenBurnt, f.publisher.published[0].TxOperation)
}

func TestProcessChainEventPushDepositUnknownEscrow(t *testing.T) {
	f := newReconcilerFixture(t)

	err := f.reconciler.ProcessChainEvent(context.Background(), &ChainEvent{
		Blockchain:     models.BlockchainCardano,
		TxHash:         "cardano-tx-1",
		Operation:      models.OperationTokenReceived,
		Amount:         decimal.NewFromInt(42),
		DepositAddress: "addr1nobody",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeWalletPairNotExists, apperrors.CodeOf(err))
}

func TestProcessChainEventPushDepositOverridesDeclaredAmount(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	conversion := f.createConversion(t, 2, "addr1escrow")

	// User declared 100 but sent 90. The chain wins.
	f.cardano.confirmations["cardano-tx-1"] = 5
	err := f.reconciler.ProcessChainEvent(ctx, &ChainEvent{
		Blockchain:     models.BlockchainCardano,
		TxHash:         "cardano-tx-1",
		Operation:      models.OperationTokenReceived,
		Amount:         decimal.NewFromInt(90),
		DepositAddress: "addr1escrow",
	})
	require.NoError(t, err)
	assert.True(t, conversion.DepositAmount.Equal(decimal.NewFromInt(90)))

	recorded, err := f.transactions.GetByHash(ctx, "cardano-tx-1")
	require.NoError(t, err)
	require.NotNil(t, recorded)
	assert.True(t, recorded.Amount.Equal(decimal.NewFromInt(90)))
}

func TestProcessBridgeEventExecutesMatchingStep(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	conversion := f.createConversion(t, 2, "addr1escrow")
	conversion.Status = models.ConversionStatusProcessing

	f.cardano.confirmations["cardano-tx-1"] = 5
	require.NoError(t, f.reconciler.ProcessChainEvent(ctx, &ChainEvent{
		Blockchain:     models.BlockchainCardano,
		TxHash:         "cardano-tx-1",
		Operation:      models.OperationTokenReceived,
		Amount:         decimal.NewFromInt(100),
		DepositAddress: "addr1escrow",
	}))

	f.cardano.nextTxHash = "cardano-burn-tx"
	err := f.reconciler.ProcessBridgeEvent(ctx, &ActivityEvent{
		BlockchainName: models.BlockchainCardano,
		ConversionID:   conversion.ConversionID,
		TxAmount:       decimal.NewFromInt(100),
		TxOperation:    models.OperationTokenBurnt,
	})
	require.NoError(t, err)

	require.Len(t, f.cardano.burnCalls, 1)
	assert.Equal(t, conversion.ConversionID, f.cardano.burnCalls[0].ConversionID)

	recorded, err := f.transactions.GetByHash(ctx, "cardano-burn-tx")
	require.NoError(t, err)
	require.NotNil(t, recorded)
	assert.Equal(t, models.VisibilityInternal, recorded.Visibility)
	assert.Equal(t, models.TransactionWaitingForConfirmation, recorded.Status)
}

func TestProcessChainEventConfirmsBackendTransaction(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	conversion := f.createConversion(t, 2, "addr1escrow")

	f.cardano.confirmations["cardano-tx-1"] = 5
	require.NoError(t, f.reconciler.ProcessChainEvent(ctx, &ChainEvent{
		Blockchain:     models.BlockchainCardano,
		TxHash:         "cardano-tx-1",
		Operation:      models.OperationTokenReceived,
		Amount:         decimal.NewFromInt(100),
		DepositAddress: "addr1escrow",
	}))

	// The worker reports done, the reconciler executes the burn and
	// records it unconfirmed.
	f.cardano.nextTxHash = "cardano-burn-tx"
	require.NoError(t, f.reconciler.ProcessBridgeEvent(ctx, &ActivityEvent{
		BlockchainName: models.BlockchainCardano,
		ConversionID:   conversion.ConversionID,
		TxAmount:       decimal.NewFromInt(100),
		TxOperation:    models.OperationTokenBurnt,
	}))

	// The burn's own chain event must confirm the recorded row, not be
	// measured against the step after it.
	f.cardano.confirmations["cardano-burn-tx"] = 5
	require.NoError(t, f.reconciler.ProcessChainEvent(ctx, &ChainEvent{
		Blockchain:   models.BlockchainCardano,
		TxHash:       "cardano-burn-tx",
		Operation:    models.OperationTokenBurnt,
		ConversionID: conversion.ConversionID,
		Amount:       decimal.NewFromInt(100),
		TokenHolder:  "addr1from",
	}))

	recorded, err := f.transactions.GetByHash(ctx, "cardano-burn-tx")
	require.NoError(t, err)
	require.NotNil(t, recorded)
	assert.Equal(t, models.TransactionSuccess, recorded.Status)
	// The destination mint is on ethereum, so the conversion parks.
	assert.Equal(t, models.ConversionStatusWaitingForClaim, conversion.Status)
}

func TestProcessChainEventConfirmsSubmittedHash(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	conversion := f.createConversion(t, 1, "")

	// A user-submitted deposit hash is recorded before its chain event.
	group := &models.ConversionTransaction{ConversionID: conversion.ID, Status: models.ConversionTransactionProcessing}
	require.NoError(t, f.transactions.CreateGroup(ctx, group))
	require.NoError(t, f.transactions.CreateTransaction(ctx, &models.Transaction{
		ConversionTransactionID: group.ID,
		TokenID:                 ethToken.ID,
		Visibility:              models.VisibilityExternal,
		Operation:               models.OperationTokenBurnt,
		TxHash:                  "0xburn",
		Amount:                  decimal.NewFromInt(100),
		Status:                  models.TransactionWaitingForConfirmation,
	}))

	f.eth.confirmations["0xburn"] = 5
	require.NoError(t, f.reconciler.ProcessChainEvent(ctx, &ChainEvent{
		Blockchain:   models.BlockchainEthereum,
		TxHash:       "0xburn",
		Operation:    models.OperationTokenBurnt,
		ConversionID: "c-1",
		Amount:       decimal.NewFromInt(100),
		TokenHolder:  "from",
	}))

	recorded, err := f.transactions.GetByHash(ctx, "0xburn")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionSuccess, recorded.Status)
	assert.EqualValues(t, 5, recorded.Confirmation)
	assert.Equal(t, models.ConversionStatusWaitingForClaim, conversion.Status)
}

func TestProcessBridgeEventMismatchIsConflict(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	conversion := f.createConversion(t, 2, "addr1escrow")

	err := f.reconciler.ProcessBridgeEvent(ctx, &ActivityEvent{
		BlockchainName: models.BlockchainCardano,
		ConversionID:   conversion.ConversionID,
		TxAmount:       decimal.NewFromInt(999),
		TxOperation:    models.OperationTokenBurnt,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, apperrors.CodeActivityEventNotMatching, apperrors.CodeOf(err))
	assert.Empty(t, f.cardano.burnCalls)
}
