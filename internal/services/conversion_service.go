package services

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"time"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/chains"
	"bridge-backend/internal/models"
	"bridge-backend/internal/repository"
	"bridge-backend/internal/signature"
	"bridge-backend/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ChainPolicy carries the per-chain tuning the orchestrator applies.
type ChainPolicy struct {
	SignatureExpiryBlocks uint64
	ConversionTTL         time.Duration
}

// CreateConversionInput is a user's request to open a conversion.
type CreateConversionInput struct {
	TokenPairID uint
	FromAddress string
	ToAddress   string
	Amount      decimal.Decimal
	// Signature over WalletPairMessage, always from the EVM side of the pair.
	Signature     string
	SignedAtBlock uint64
	// Optional proof of Cardano source ownership.
	CardanoSignature string
	CardanoPublicKey string
}

// CreateConversionResult is the response to a create request.
type CreateConversionResult struct {
	Conversion *models.Conversion
	// Escrow address to send to when the deposit side is Cardano.
	DepositAddress string
	// Contract-ready authorization for the origin burn. EVM origins only.
	AuthorizationSignature string
}

// ClaimConversionInput is a user's request to claim the destination mint.
type ClaimConversionInput struct {
	ConversionID string
	Amount       decimal.Decimal
	FromAddress  string
	ToAddress    string
	Signature    string
}

// ConversionOrchestrator implements the user-facing conversion operations.
type ConversionOrchestrator struct {
	tokenPairRepo   repository.TokenPairRepository
	walletPairRepo  repository.WalletPairRepository
	conversionRepo  repository.ConversionRepository
	transactionRepo repository.TransactionRepository
	engine          *ActivityEventEngine
	registry        *chains.Registry
	signers         map[models.BlockchainName]*ecdsa.PrivateKey
	policies        map[models.BlockchainName]ChainPolicy
	notifier        StatusNotifier
}

func NewConversionOrchestrator(
	tokenPairRepo repository.TokenPairRepository,
	walletPairRepo repository.WalletPairRepository,
	conversionRepo repository.ConversionRepository,
	transactionRepo repository.TransactionRepository,
	engine *ActivityEventEngine,
	registry *chains.Registry,
	signers map[models.BlockchainName]*ecdsa.PrivateKey,
	policies map[models.BlockchainName]ChainPolicy,
	notifier StatusNotifier,
) *ConversionOrchestrator {
	return &ConversionOrchestrator{
		tokenPairRepo:   tokenPairRepo,
		walletPairRepo:  walletPairRepo,
		conversionRepo:  conversionRepo,
		transactionRepo: transactionRepo,
		engine:          engine,
		registry:        registry,
		signers:         signers,
		policies:        policies,
		notifier:        notifier,
	}
}

// CreateConversion validates a conversion request end to end and opens a
// USER_INITIATED conversion. A newer request on the same wallet pair
// supersedes any pending one, which is expired in place.
func (o *ConversionOrchestrator) CreateConversion(ctx context.Context, input *CreateConversionInput) (*CreateConversionResult, error) {
	tokenPair, err := o.tokenPairRepo.GetByID(ctx, input.TokenPairID)
	if err != nil {
		return nil, err
	}
	fromChain := tokenPair.FromToken.Blockchain.Name
	toChain := tokenPair.ToToken.Blockchain.Name
	if fromChain == models.BlockchainCardano && toChain == models.BlockchainCardano {
		return nil, apperrors.BadRequest(apperrors.CodeUnsupportedChainPair,
			"conversions from cardano to cardano are not supported")
	}

	if input.Amount.LessThan(tokenPair.MinValue) || input.Amount.GreaterThan(tokenPair.MaxValue) {
		return nil, apperrors.BadRequest(apperrors.CodeAmountOutOfBounds,
			"amount %s is outside the allowed range [%s, %s]",
			input.Amount, tokenPair.MinValue, tokenPair.MaxValue)
	}

	fromAddress, err := utils.ValidateAddress(fromChain, input.FromAddress)
	if err != nil {
		return nil, err
	}
	toAddress, err := utils.ValidateAddress(toChain, input.ToAddress)
	if err != nil {
		return nil, err
	}

	claim, fee := ComputeAmounts(tokenPair, input.Amount)
	if err := o.checkLiquidity(ctx, tokenPair, claim); err != nil {
		return nil, err
	}
	if err := o.verifyRequestSignature(ctx, input, tokenPair, fromAddress, toAddress); err != nil {
		return nil, err
	}

	walletPair, err := o.ensureWalletPair(ctx, tokenPair, fromAddress, toAddress, input)
	if err != nil {
		return nil, err
	}

	// At most one pending conversion per wallet pair. A request for the
	// same amounts returns the pending one; a differing request expires it
	// and wins.
	if pending, err := o.conversionRepo.FindLatestPending(ctx, walletPair.ID); err != nil {
		return nil, err
	} else if pending != nil {
		if pending.DepositAmount.Equal(input.Amount) && pending.FeeAmount.Equal(fee) {
			return o.buildCreateResult(pending, walletPair, tokenPair, fromAddress)
		}
		if err := o.conversionRepo.UpdateStatus(ctx, pending.ID,
			[]models.ConversionStatus{models.ConversionStatusUserInitiated},
			models.ConversionStatusExpired); err != nil {
			return nil, err
		}
		logrus.WithField("conversion_id", pending.ConversionID).Info("expired superseded conversion")
	}

	conversion := &models.Conversion{
		ConversionID:  uuid.NewString(),
		WalletPairID:  walletPair.ID,
		DepositAmount: input.Amount,
		ClaimAmount:   claim,
		FeeAmount:     fee,
		Status:        models.ConversionStatusUserInitiated,
		CreatedBy:     models.CreatedByDApp,
	}
	if err := o.conversionRepo.Create(ctx, conversion); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"conversion_id": conversion.ConversionID,
		"token_pair_id": tokenPair.ID,
		"amount":        input.Amount,
	}).Info("conversion created")
	return o.buildCreateResult(conversion, walletPair, tokenPair, fromAddress)
}

// buildCreateResult assembles the create response: the Cardano escrow
// address when the deposit side derives one, and the backend-signed burn
// authorization when the origin is an EVM chain.
func (o *ConversionOrchestrator) buildCreateResult(conversion *models.Conversion, walletPair *models.WalletPair, tokenPair *models.TokenPair, fromAddress string) (*CreateConversionResult, error) {
	result := &CreateConversionResult{Conversion: conversion}
	if walletPair.DepositAddress != nil {
		result.DepositAddress = *walletPair.DepositAddress
	}

	fromChain := tokenPair.FromToken.Blockchain.Name
	if fromChain.IsEVM() {
		signer, ok := o.signers[fromChain]
		if !ok {
			return nil, apperrors.Internal(apperrors.CodeMissingReferenceData,
				"no signing key configured for %s", fromChain)
		}
		authorization, err := signature.SignAuthorization(signer, conversion.ConversionID,
			conversion.DepositAmount, tokenPair.FromToken.AllowedDecimal, fromAddress)
		if err != nil {
			return nil, err
		}
		result.AuthorizationSignature = authorization
	}
	return result, nil
}

// SubmitTransactionHash attaches a user-submitted deposit transaction to a
// conversion. The hash is recorded unconfirmed; the chain event pipeline
// confirms it later.
func (o *ConversionOrchestrator) SubmitTransactionHash(ctx context.Context, conversionID, txHash string) error {
	existing, err := o.transactionRepo.GetByHash(ctx, txHash)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperrors.Conflict(apperrors.CodeTransactionAlreadyProcessed,
			"transaction hash %s is already in use", txHash)
	}

	conversion, err := o.conversionRepo.GetByConversionID(ctx, conversionID)
	if err != nil {
		return err
	}
	if conversion.Terminal() {
		return apperrors.BadRequest(apperrors.CodeConversionNotFound,
			"conversion %s is already %s", conversionID, conversion.Status)
	}

	transactions, err := o.transactionRepo.ListByConversion(ctx, conversion.ID)
	if err != nil {
		return err
	}
	for _, tx := range transactions {
		if tx.Status != models.TransactionSuccess {
			return apperrors.Conflict(apperrors.CodeExistingTransactionNotSucceeded,
				"conversion %s still has transaction %s awaiting confirmation", conversionID, tx.TxHash)
		}
	}
	expected, err := o.engine.NextEvent(ctx, conversion, transactions)
	if err != nil {
		return err
	}
	if expected == nil {
		return apperrors.BadRequest(apperrors.CodeUnexpectedEvent,
			"conversion %s expects no further transactions", conversionID)
	}

	// The hash must actually emit the expected event before it is recorded.
	adapter, err := o.registry.Get(expected.BlockchainName)
	if err != nil {
		return err
	}
	walletPair, err := o.walletPairRepo.GetByID(ctx, conversion.WalletPairID)
	if err != nil {
		return err
	}
	tokenPair, err := o.tokenPairRepo.GetByID(ctx, walletPair.TokenPairID)
	if err != nil {
		return err
	}
	tokenDecimals := tokenPair.FromToken.AllowedDecimal
	if expected.TokenID == tokenPair.ToTokenID {
		tokenDecimals = tokenPair.ToToken.AllowedDecimal
	}
	events, err := adapter.ConversionEvents(ctx, txHash, tokenDecimals)
	if err != nil {
		return err
	}
	matched := false
	for _, event := range events {
		if event.Operation == expected.TxOperation &&
			(event.ConversionID == "" || event.ConversionID == conversionID) {
			matched = true
			break
		}
	}
	if !matched {
		return apperrors.BadRequest(apperrors.CodeUnexpectedEvent,
			"transaction %s does not emit the expected %s event", txHash, expected.TxOperation)
	}

	group, err := o.transactionRepo.FindOpenGroup(ctx, conversion.ID)
	if err != nil {
		return err
	}
	if group == nil {
		group = &models.ConversionTransaction{
			ConversionID: conversion.ID,
			Status:       models.ConversionTransactionProcessing,
		}
		if err := o.transactionRepo.CreateGroup(ctx, group); err != nil {
			return err
		}
	}
	if err := o.transactionRepo.CreateTransaction(ctx, &models.Transaction{
		ConversionTransactionID: group.ID,
		TokenID:                 expected.TokenID,
		Visibility:              models.VisibilityExternal,
		Operation:               expected.TxOperation,
		TxHash:                  txHash,
		Amount:                  expected.TxAmount,
		Status:                  models.TransactionWaitingForConfirmation,
	}); err != nil {
		return err
	}

	if conversion.Status == models.ConversionStatusUserInitiated {
		if err := o.conversionRepo.UpdateStatus(ctx, conversion.ID,
			[]models.ConversionStatus{models.ConversionStatusUserInitiated},
			models.ConversionStatusProcessing); err != nil {
			return err
		}
		if o.notifier != nil {
			o.notifier.NotifyStatus(conversion.ConversionID, models.ConversionStatusProcessing)
		}
	}
	return nil
}

// ClaimConversion authorizes the user to execute the destination mint. Only
// conversions parked in WAITING_FOR_CLAIM can be claimed, and only by the
// destination wallet: the request carries the wallet pair and amount, signed
// by the receiving address.
func (o *ConversionOrchestrator) ClaimConversion(ctx context.Context, input *ClaimConversionInput) (string, error) {
	conversion, err := o.conversionRepo.GetByConversionID(ctx, input.ConversionID)
	if err != nil {
		return "", err
	}
	if conversion.Status != models.ConversionStatusWaitingForClaim {
		return "", apperrors.BadRequest(apperrors.CodeClaimNotAllowed,
			"conversion %s is %s, claims require WAITING_FOR_CLAIM", input.ConversionID, conversion.Status)
	}

	walletPair, err := o.walletPairRepo.GetByID(ctx, conversion.WalletPairID)
	if err != nil {
		return "", err
	}
	tokenPair, err := o.tokenPairRepo.GetByID(ctx, walletPair.TokenPairID)
	if err != nil {
		return "", err
	}

	if !strings.EqualFold(input.FromAddress, walletPair.FromAddress) ||
		!strings.EqualFold(input.ToAddress, walletPair.ToAddress) {
		return "", apperrors.BadRequest(apperrors.CodeMismatchTokenHolder,
			"claim addresses do not match conversion %s", input.ConversionID)
	}
	if !input.Amount.Equal(conversion.ClaimAmount) {
		return "", apperrors.BadRequest(apperrors.CodeMismatchAmount,
			"conversion %s claims %s, request names %s", input.ConversionID, conversion.ClaimAmount, input.Amount)
	}
	message := signature.ClaimMessage(conversion.ConversionID, input.Amount,
		walletPair.FromAddress, walletPair.ToAddress)
	if err := signature.VerifyEVM(walletPair.ToAddress, message, input.Signature); err != nil {
		return "", err
	}

	toChain := tokenPair.ToToken.Blockchain.Name
	signer, ok := o.signers[toChain]
	if !ok {
		return "", apperrors.Internal(apperrors.CodeMissingReferenceData,
			"no signing key configured for %s", toChain)
	}

	// The contract releases claim plus fee and keeps the fee for itself.
	authorized := conversion.ClaimAmount.Add(conversion.FeeAmount)
	claimSignature, err := signature.SignAuthorization(signer, conversion.ConversionID,
		authorized, tokenPair.ToToken.AllowedDecimal, walletPair.ToAddress)
	if err != nil {
		return "", err
	}
	if err := o.conversionRepo.SetClaimSignature(ctx, conversion.ID, claimSignature); err != nil {
		return "", err
	}
	if err := o.conversionRepo.UpdateStatus(ctx, conversion.ID,
		[]models.ConversionStatus{models.ConversionStatusWaitingForClaim},
		models.ConversionStatusClaimInitiated); err != nil {
		return "", err
	}
	if o.notifier != nil {
		o.notifier.NotifyStatus(conversion.ConversionID, models.ConversionStatusClaimInitiated)
	}
	return claimSignature, nil
}

// ExpireConversions sweeps USER_INITIATED conversions past their source
// chain's TTL. Safe to run from both the in-process ticker and the CLI:
// already-expired rows never match the conditional update.
func (o *ConversionOrchestrator) ExpireConversions(ctx context.Context) (int64, error) {
	tokenPairs, err := o.tokenPairRepo.List(ctx)
	if err != nil {
		return 0, err
	}
	byChain := make(map[models.BlockchainName][]uint)
	for _, pair := range tokenPairs {
		chain := pair.FromToken.Blockchain.Name
		byChain[chain] = append(byChain[chain], pair.ID)
	}

	var total int64
	for chain, pairIDs := range byChain {
		policy, ok := o.policies[chain]
		if !ok || policy.ConversionTTL <= 0 {
			continue
		}
		expired, err := o.conversionRepo.ExpireOlderThan(ctx, pairIDs, time.Now().Add(-policy.ConversionTTL))
		if err != nil {
			return total, err
		}
		if expired > 0 {
			logrus.WithFields(logrus.Fields{
				"chain":   chain,
				"expired": expired,
			}).Info("expired stale conversions")
		}
		total += expired
	}
	return total, nil
}

// checkLiquidity refuses conversions the bridge could not pay out. Pairs
// flagged non-liquid mint on demand and skip the check.
func (o *ConversionOrchestrator) checkLiquidity(ctx context.Context, tokenPair *models.TokenPair, claim decimal.Decimal) error {
	if !tokenPair.IsLiquid {
		return nil
	}
	toChain := tokenPair.ToToken.Blockchain.Name
	adapter, err := o.registry.Get(toChain)
	if err != nil {
		return err
	}
	balance, err := adapter.BridgeBalance(ctx, tokenPair.ToToken.ContractAddress, tokenPair.ToToken.AllowedDecimal)
	if err != nil {
		return err
	}
	locked, err := o.conversionRepo.SumLockedDeposits(ctx, tokenPair.ID)
	if err != nil {
		return err
	}
	if balance.Sub(locked).LessThan(claim) {
		return apperrors.BadRequest(apperrors.CodeInsufficientLiquidity,
			"bridge holds %s with %s already committed, cannot cover %s", balance, locked, claim)
	}
	return nil
}

// verifyRequestSignature enforces the signing rule: the EVM side of the
// pair signs regardless of direction, because only EVM wallets can produce
// the recoverable ECDSA signature the bridge contract later checks. A
// Cardano source may additionally prove ownership with an ed25519
// signature.
func (o *ConversionOrchestrator) verifyRequestSignature(ctx context.Context, input *CreateConversionInput, tokenPair *models.TokenPair, fromAddress, toAddress string) error {
	fromChain := tokenPair.FromToken.Blockchain.Name
	signerChain := fromChain
	signerAddress := fromAddress
	if !fromChain.IsEVM() {
		signerChain = tokenPair.ToToken.Blockchain.Name
		signerAddress = toAddress
	}

	message := signature.WalletPairMessage(fromAddress, toAddress, tokenPair.ID, input.SignedAtBlock)
	if err := signature.VerifyEVM(signerAddress, message, input.Signature); err != nil {
		return err
	}

	adapter, err := o.registry.Get(signerChain)
	if err != nil {
		return err
	}
	currentBlock, err := adapter.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	window := o.policies[signerChain].SignatureExpiryBlocks
	if window == 0 {
		window = 500
	}
	if err := signature.CheckExpiry(input.SignedAtBlock, currentBlock, window); err != nil {
		return err
	}

	if fromChain == models.BlockchainCardano && input.CardanoPublicKey != "" {
		return signature.VerifyCardano(fromAddress, message, input.CardanoSignature, input.CardanoPublicKey)
	}
	return nil
}

// ensureWalletPair finds or creates the wallet pair for the address tuple,
// deriving the Cardano escrow address on first use.
func (o *ConversionOrchestrator) ensureWalletPair(ctx context.Context, tokenPair *models.TokenPair, fromAddress, toAddress string, input *CreateConversionInput) (*models.WalletPair, error) {
	walletPair, err := o.walletPairRepo.FindByAddresses(ctx, tokenPair.ID, fromAddress, toAddress)
	if err != nil {
		return nil, err
	}
	if walletPair != nil {
		return walletPair, nil
	}

	walletPair = &models.WalletPair{
		TokenPairID: tokenPair.ID,
		FromAddress: fromAddress,
		ToAddress:   toAddress,
		Signature:   input.Signature,
	}
	if tokenPair.FromToken.Blockchain.Name == models.BlockchainCardano {
		adapter, err := o.registry.Get(models.BlockchainCardano)
		if err != nil {
			return nil, err
		}
		deriver, ok := adapter.(chains.DepositAddressDeriver)
		if !ok {
			return nil, apperrors.Internal(apperrors.CodeMissingReferenceData,
				"cardano adapter cannot derive deposit addresses")
		}
		depositAddress, err := deriver.DeriveDepositAddress(ctx, fromAddress+":"+toAddress)
		if err != nil {
			return nil, err
		}
		walletPair.DepositAddress = &depositAddress
	}
	if err := o.walletPairRepo.Create(ctx, walletPair); err != nil {
		return nil, err
	}
	return walletPair, nil
}
