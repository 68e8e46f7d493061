package services

import (
	"context"
	"time"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/chains"
	"bridge-backend/internal/models"
	"bridge-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ChainEvent is a primary chain event after payload parsing, normalized
// across the EVM and Cardano scanner formats.
type ChainEvent struct {
	Blockchain   models.BlockchainName
	TxHash       string
	Operation    models.TxOperation
	ConversionID string // empty for Cardano push deposits
	Amount       decimal.Decimal
	TokenHolder  string
	// Escrow address the funds arrived at. Cardano deposits only.
	DepositAddress string
}

// BridgePublisher sends "act next" messages to the bridge worker queue.
type BridgePublisher interface {
	PublishBridgeAction(ctx context.Context, event *ActivityEvent) error
}

// StatusNotifier receives conversion status transitions after commit.
type StatusNotifier interface {
	NotifyStatus(conversionID string, status models.ConversionStatus)
}

// ConfirmationPolicy bounds the confirmation polling of one chain.
type ConfirmationPolicy struct {
	Interval   time.Duration
	MaxRetries int
}

var defaultConfirmationPolicy = ConfirmationPolicy{Interval: 10 * time.Second, MaxRetries: 6}

// EventReconciler drives conversions forward from observed chain events and
// bridge completions. Every entry point is safe to replay: duplicate events
// collapse into Conflict errors at the tx-hash unique index, and status
// transitions are conditional writes.
type EventReconciler struct {
	blockchainRepo  repository.BlockchainRepository
	tokenPairRepo   repository.TokenPairRepository
	walletPairRepo  repository.WalletPairRepository
	conversionRepo  repository.ConversionRepository
	transactionRepo repository.TransactionRepository
	engine          *ActivityEventEngine
	registry        *chains.Registry
	publisher       BridgePublisher
	notifier        StatusNotifier
	confirmation    map[models.BlockchainName]ConfirmationPolicy
}

func NewEventReconciler(
	blockchainRepo repository.BlockchainRepository,
	tokenPairRepo repository.TokenPairRepository,
	walletPairRepo repository.WalletPairRepository,
	conversionRepo repository.ConversionRepository,
	transactionRepo repository.TransactionRepository,
	engine *ActivityEventEngine,
	registry *chains.Registry,
	publisher BridgePublisher,
	notifier StatusNotifier,
	confirmation map[models.BlockchainName]ConfirmationPolicy,
) *EventReconciler {
	return &EventReconciler{
		blockchainRepo:  blockchainRepo,
		tokenPairRepo:   tokenPairRepo,
		walletPairRepo:  walletPairRepo,
		conversionRepo:  conversionRepo,
		transactionRepo: transactionRepo,
		engine:          engine,
		registry:        registry,
		publisher:       publisher,
		notifier:        notifier,
		confirmation:    confirmation,
	}
}

// ProcessChainEvent handles one primary chain event.
//
// The tx hash is the idempotency key: a hash already recorded as SUCCESS is
// a Conflict, and concurrent inserts of the same hash lose to the unique
// index. Confirmation shortfalls surface as Retryable so the consumer
// redelivers instead of dropping the event.
func (r *EventReconciler) ProcessChainEvent(ctx context.Context, event *ChainEvent) error {
	blockchain, err := r.blockchainRepo.GetByName(ctx, event.Blockchain)
	if err != nil {
		return err
	}

	existing, err := r.transactionRepo.GetByHash(ctx, event.TxHash)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == models.TransactionSuccess {
		return apperrors.Conflict(apperrors.CodeTransactionAlreadyProcessed,
			"transaction %s already reconciled", event.TxHash)
	}

	conversion, walletPair, err := r.resolveConversion(ctx, event)
	if err != nil {
		return err
	}
	if conversion.Terminal() {
		return apperrors.Conflict(apperrors.CodeTransactionAlreadyProcessed,
			"conversion %s is already %s", conversion.ConversionID, conversion.Status)
	}

	transactions, err := r.transactionRepo.ListByConversion(ctx, conversion.ID)
	if err != nil {
		return err
	}
	// A row recorded ahead of its chain event (submitted hash, backend
	// mint/burn) is still WAITING_FOR_CONFIRMATION and does not occupy its
	// position yet. The walk runs over confirmed rows only, so the event
	// confirming such a row resolves to that row's own step instead of the
	// one after it.
	settled := make([]*models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Status == models.TransactionSuccess {
			settled = append(settled, tx)
		}
	}
	expected, err := r.engine.NextEvent(ctx, conversion, settled)
	if err != nil {
		return err
	}
	if expected == nil {
		return apperrors.BadRequest(apperrors.CodeUnexpectedEvent,
			"conversion %s expects no further events", conversion.ConversionID)
	}
	if expected.BlockchainName != event.Blockchain || expected.TxOperation != event.Operation {
		return apperrors.BadRequest(apperrors.CodeUnexpectedEvent,
			"conversion %s expects %s on %s, got %s on %s",
			conversion.ConversionID, expected.TxOperation, expected.BlockchainName,
			event.Operation, event.Blockchain)
	}
	if err := r.validateEvent(ctx, event, expected, conversion, walletPair); err != nil {
		return err
	}
	// A drift-corrected deposit changes the expected amount; re-read it.
	if !expected.TxAmount.Equal(event.Amount) {
		expected.TxAmount = event.Amount
	}

	confirmations, err := r.awaitConfirmations(ctx, event.Blockchain, event.TxHash, blockchain.BlockConfirmation)
	if err != nil {
		return err
	}

	if err := r.recordTransaction(ctx, conversion, existing, event, expected, confirmations); err != nil {
		return err
	}
	if conversion.Status == models.ConversionStatusUserInitiated {
		r.transition(ctx, conversion,
			[]models.ConversionStatus{models.ConversionStatusUserInitiated},
			models.ConversionStatusProcessing)
	}

	return r.advance(ctx, conversion)
}

// ProcessBridgeEvent handles one bridge completion: the worker claims it
// performed the next expected step and the reconciler executes the matching
// mint or burn only when the claim agrees with its own derivation.
func (r *EventReconciler) ProcessBridgeEvent(ctx context.Context, completed *ActivityEvent) error {
	conversion, err := r.conversionRepo.GetByConversionID(ctx, completed.ConversionID)
	if err != nil {
		return err
	}
	if conversion.Terminal() {
		return apperrors.Conflict(apperrors.CodeTransactionAlreadyProcessed,
			"conversion %s is already %s", conversion.ConversionID, conversion.Status)
	}

	transactions, err := r.transactionRepo.ListByConversion(ctx, conversion.ID)
	if err != nil {
		return err
	}
	expected, err := r.engine.NextEvent(ctx, conversion, transactions)
	if err != nil {
		return err
	}
	if expected == nil || !expected.Matches(completed) {
		return apperrors.Conflict(apperrors.CodeActivityEventNotMatching,
			"completion for conversion %s does not match the expected next event", completed.ConversionID)
	}

	adapter, err := r.registry.Get(expected.BlockchainName)
	if err != nil {
		return err
	}
	walletPair, err := r.walletPairRepo.GetByID(ctx, conversion.WalletPairID)
	if err != nil {
		return err
	}
	tokenPair, err := r.tokenPairRepo.GetByID(ctx, walletPair.TokenPairID)
	if err != nil {
		return err
	}
	token := tokenPair.FromToken
	address := walletPair.FromAddress
	if expected.TxOperation == models.OperationTokenMinted {
		token = tokenPair.ToToken
		address = walletPair.ToAddress
	}

	action := chains.BridgeAction{
		TokenContract: token.ContractAddress,
		Amount:        expected.TxAmount,
		Decimals:      token.AllowedDecimal,
		Address:       address,
		ConversionID:  conversion.ConversionID,
	}
	var txHash string
	if expected.TxOperation == models.OperationTokenMinted {
		txHash, err = adapter.Mint(ctx, action)
	} else {
		txHash, err = adapter.Burn(ctx, action)
	}
	if err != nil {
		return err
	}

	group, err := r.openGroup(ctx, conversion)
	if err != nil {
		return err
	}
	return r.transactionRepo.CreateTransaction(ctx, &models.Transaction{
		ConversionTransactionID: group.ID,
		TokenID:                 expected.TokenID,
		Visibility:              models.VisibilityInternal,
		Operation:               expected.TxOperation,
		TxHash:                  txHash,
		Amount:                  expected.TxAmount,
		Status:                  models.TransactionWaitingForConfirmation,
	})
}

// resolveConversion finds the conversion an event belongs to. Events that
// carry a conversion id resolve directly. Cardano push deposits carry only
// the escrow address: an active conversion on that wallet pair absorbs the
// deposit (the observed amount wins over what the user declared), otherwise
// the deposit itself creates the conversion.
func (r *EventReconciler) resolveConversion(ctx context.Context, event *ChainEvent) (*models.Conversion, *models.WalletPair, error) {
	if event.ConversionID != "" {
		conversion, err := r.conversionRepo.GetByConversionID(ctx, event.ConversionID)
		if err != nil {
			return nil, nil, err
		}
		walletPair, err := r.walletPairRepo.GetByID(ctx, conversion.WalletPairID)
		if err != nil {
			return nil, nil, err
		}
		return conversion, walletPair, nil
	}

	walletPair, err := r.walletPairRepo.FindByDepositAddress(ctx, event.DepositAddress)
	if err != nil {
		return nil, nil, err
	}
	if walletPair == nil {
		return nil, nil, apperrors.BadRequest(apperrors.CodeWalletPairNotExists,
			"no wallet pair registered for deposit address %s", event.DepositAddress)
	}

	conversion, err := r.conversionRepo.FindActiveByWalletPair(ctx, walletPair.ID)
	if err != nil {
		return nil, nil, err
	}
	tokenPair, err := r.tokenPairRepo.GetByID(ctx, walletPair.TokenPairID)
	if err != nil {
		return nil, nil, err
	}

	if conversion == nil {
		claim, fee := ComputeAmounts(tokenPair, event.Amount)
		conversion = &models.Conversion{
			ConversionID:  uuid.NewString(),
			WalletPairID:  walletPair.ID,
			DepositAmount: event.Amount,
			ClaimAmount:   claim,
			FeeAmount:     fee,
			Status:        models.ConversionStatusUserInitiated,
			CreatedBy:     models.CreatedByBackend,
		}
		if err := r.conversionRepo.Create(ctx, conversion); err != nil {
			return nil, nil, err
		}
		logrus.WithFields(logrus.Fields{
			"conversion_id":   conversion.ConversionID,
			"deposit_address": event.DepositAddress,
			"amount":          event.Amount,
		}).Info("created conversion from unsolicited deposit")
		return conversion, walletPair, nil
	}

	if !conversion.DepositAmount.Equal(event.Amount) {
		claim, fee := ComputeAmounts(tokenPair, event.Amount)
		if err := r.conversionRepo.UpdateAmounts(ctx, conversion.ID, event.Amount, claim, fee); err != nil {
			return nil, nil, err
		}
		logrus.WithFields(logrus.Fields{
			"conversion_id": conversion.ConversionID,
			"declared":      conversion.DepositAmount,
			"observed":      event.Amount,
		}).Warn("deposit amount drifted from declared amount")
		conversion.DepositAmount = event.Amount
		conversion.ClaimAmount = claim
		conversion.FeeAmount = fee
	}
	return conversion, walletPair, nil
}

// validateEvent checks amount and holder against the expectation. Deposit
// drift is tolerated only for Cardano push deposits, where the chain is the
// source of truth for the amount.
func (r *EventReconciler) validateEvent(ctx context.Context, event *ChainEvent, expected *ActivityEvent, conversion *models.Conversion, walletPair *models.WalletPair) error {
	driftAllowed := event.Operation == models.OperationTokenReceived && event.Blockchain == models.BlockchainCardano
	if !driftAllowed && !expected.TxAmount.Equal(event.Amount) {
		return apperrors.BadRequest(apperrors.CodeMismatchAmount,
			"conversion %s expects amount %s, transaction %s carries %s",
			conversion.ConversionID, expected.TxAmount, event.TxHash, event.Amount)
	}

	if event.TokenHolder != "" {
		expectedHolder := walletPair.FromAddress
		if event.Operation == models.OperationTokenMinted {
			expectedHolder = walletPair.ToAddress
		}
		if event.TokenHolder != expectedHolder {
			return apperrors.BadRequest(apperrors.CodeMismatchTokenHolder,
				"conversion %s expects holder %s, transaction %s names %s",
				conversion.ConversionID, expectedHolder, event.TxHash, event.TokenHolder)
		}
	}
	return nil
}

func (r *EventReconciler) awaitConfirmations(ctx context.Context, chain models.BlockchainName, txHash string, required int64) (int64, error) {
	adapter, err := r.registry.Get(chain)
	if err != nil {
		return 0, err
	}
	policy, ok := r.confirmation[chain]
	if !ok {
		policy = defaultConfirmationPolicy
	}
	return chains.AwaitConfirmations(ctx, adapter, txHash, required, policy.Interval, policy.MaxRetries)
}

// recordTransaction confirms a previously recorded row or inserts a fresh
// one. The unique index on the hash turns a lost insert race into a
// Conflict from the repository.
func (r *EventReconciler) recordTransaction(ctx context.Context, conversion *models.Conversion, existing *models.Transaction, event *ChainEvent, expected *ActivityEvent, confirmations int64) error {
	if existing != nil {
		return r.transactionRepo.ConfirmTransaction(ctx, existing.ID, event.Amount, confirmations)
	}
	group, err := r.openGroup(ctx, conversion)
	if err != nil {
		return err
	}
	return r.transactionRepo.CreateTransaction(ctx, &models.Transaction{
		ConversionTransactionID: group.ID,
		TokenID:                 expected.TokenID,
		Visibility:              models.VisibilityExternal,
		Operation:               event.Operation,
		TxHash:                  event.TxHash,
		Amount:                  event.Amount,
		Confirmation:            confirmations,
		Status:                  models.TransactionSuccess,
	})
}

func (r *EventReconciler) openGroup(ctx context.Context, conversion *models.Conversion) (*models.ConversionTransaction, error) {
	group, err := r.transactionRepo.FindOpenGroup(ctx, conversion.ID)
	if err != nil {
		return nil, err
	}
	if group != nil {
		return group, nil
	}
	group = &models.ConversionTransaction{
		ConversionID: conversion.ID,
		Status:       models.ConversionTransactionProcessing,
	}
	if err := r.transactionRepo.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// advance recomputes the next expected event after a successful recording
// and either finalizes, parks the conversion for a user claim, or asks the
// bridge worker to act.
func (r *EventReconciler) advance(ctx context.Context, conversion *models.Conversion) error {
	transactions, err := r.transactionRepo.ListByConversion(ctx, conversion.ID)
	if err != nil {
		return err
	}
	for _, tx := range transactions {
		if tx.Status != models.TransactionSuccess {
			return nil // waiting for the chain to confirm a recorded row
		}
	}
	next, err := r.engine.NextEvent(ctx, conversion, transactions)
	if err != nil {
		return err
	}

	if next == nil {
		return r.finalize(ctx, conversion, transactions)
	}

	if next.TxOperation == models.OperationTokenMinted && next.BlockchainName.IsEVM() {
		// Destination mints on EVM chains are user-claimed, not backend-driven.
		if conversion.Status == models.ConversionStatusProcessing {
			r.transition(ctx, conversion,
				[]models.ConversionStatus{models.ConversionStatusProcessing},
				models.ConversionStatusWaitingForClaim)
		}
		return nil
	}

	if err := r.publisher.PublishBridgeAction(ctx, next); err != nil {
		return apperrors.Wrap(err, apperrors.CodeQueuePublishFailed,
			"failed to publish bridge action for "+conversion.ConversionID)
	}
	return nil
}

func (r *EventReconciler) finalize(ctx context.Context, conversion *models.Conversion, transactions []*models.Transaction) error {
	groups := make(map[uint]struct{})
	for _, tx := range transactions {
		groups[tx.ConversionTransactionID] = struct{}{}
	}
	for groupID := range groups {
		if err := r.transactionRepo.UpdateGroupStatus(ctx, groupID, models.ConversionTransactionSuccess); err != nil {
			return err
		}
	}
	r.transition(ctx, conversion, []models.ConversionStatus{
		models.ConversionStatusProcessing,
		models.ConversionStatusWaitingForClaim,
		models.ConversionStatusClaimInitiated,
	}, models.ConversionStatusSuccess)
	logrus.WithField("conversion_id", conversion.ConversionID).Info("conversion completed")
	return nil
}

func (r *EventReconciler) transition(ctx context.Context, conversion *models.Conversion, from []models.ConversionStatus, to models.ConversionStatus) {
	if err := r.conversionRepo.UpdateStatus(ctx, conversion.ID, from, to); err != nil {
		logrus.WithError(err).WithField("conversion_id", conversion.ConversionID).
			Error("status transition failed")
		return
	}
	conversion.Status = to
	if r.notifier != nil {
		r.notifier.NotifyStatus(conversion.ConversionID, to)
	}
}
