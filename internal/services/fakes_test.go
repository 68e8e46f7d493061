package services

import (
	"context"
	"sync"
	"time"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/chains"
	"bridge-backend/internal/models"

	"github.com/shopspring/decimal"
)

// In-memory repository fakes backing the service tests.

type fakeBlockchainRepo struct {
	chains map[models.BlockchainName]*models.Blockchain
}

func newFakeBlockchainRepo() *fakeBlockchainRepo {
	return &fakeBlockchainRepo{chains: map[models.BlockchainName]*models.Blockchain{
		models.BlockchainEthereum: {ID: 1, Name: models.BlockchainEthereum, NetworkID: "1", BlockConfirmation: 2},
		models.BlockchainBinance:  {ID: 2, Name: models.BlockchainBinance, NetworkID: "56", BlockConfirmation: 2},
		models.BlockchainCardano:  {ID: 3, Name: models.BlockchainCardano, NetworkID: "764824073", BlockConfirmation: 2},
	}}
}

func (r *fakeBlockchainRepo) GetByName(ctx context.Context, name models.BlockchainName) (*models.Blockchain, error) {
	chain, ok := r.chains[name]
	if !ok {
		return nil, apperrors.Internal(apperrors.CodeMissingReferenceData, "unknown blockchain %s", name)
	}
	return chain, nil
}

func (r *fakeBlockchainRepo) GetByID(ctx context.Context, id uint) (*models.Blockchain, error) {
	for _, chain := range r.chains {
		if chain.ID == id {
			return chain, nil
		}
	}
	return nil, apperrors.Internal(apperrors.CodeMissingReferenceData, "unknown blockchain %d", id)
}

func (r *fakeBlockchainRepo) List(ctx context.Context) ([]*models.Blockchain, error) {
	out := make([]*models.Blockchain, 0, len(r.chains))
	for _, chain := range r.chains {
		out = append(out, chain)
	}
	return out, nil
}

type fakeTokenPairRepo struct {
	pairs map[uint]*models.TokenPair
}

func (r *fakeTokenPairRepo) GetByID(ctx context.Context, id uint) (*models.TokenPair, error) {
	pair, ok := r.pairs[id]
	if !ok {
		return nil, apperrors.BadRequest(apperrors.CodeMissingReferenceData, "token pair %d does not exist", id)
	}
	return pair, nil
}

func (r *fakeTokenPairRepo) List(ctx context.Context) ([]*models.TokenPair, error) {
	out := make([]*models.TokenPair, 0, len(r.pairs))
	for _, pair := range r.pairs {
		out = append(out, pair)
	}
	return out, nil
}

type fakeWalletPairRepo struct {
	mu     sync.Mutex
	nextID uint
	pairs  map[uint]*models.WalletPair
}

func newFakeWalletPairRepo() *fakeWalletPairRepo {
	return &fakeWalletPairRepo{nextID: 1, pairs: make(map[uint]*models.WalletPair)}
}

func (r *fakeWalletPairRepo) Create(ctx context.Context, pair *models.WalletPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pair.ID = r.nextID
	r.nextID++
	r.pairs[pair.ID] = pair
	return nil
}

func (r *fakeWalletPairRepo) GetByID(ctx context.Context, id uint) (*models.WalletPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pair, ok := r.pairs[id]
	if !ok {
		return nil, apperrors.Internal(apperrors.CodeMissingReferenceData, "wallet pair %d not found", id)
	}
	return pair, nil
}

func (r *fakeWalletPairRepo) FindByAddresses(ctx context.Context, tokenPairID uint, fromAddress, toAddress string) (*models.WalletPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pair := range r.pairs {
		if pair.TokenPairID == tokenPairID && pair.FromAddress == fromAddress && pair.ToAddress == toAddress {
			return pair, nil
		}
	}
	return nil, nil
}

func (r *fakeWalletPairRepo) FindByDepositAddress(ctx context.Context, depositAddress string) (*models.WalletPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pair := range r.pairs {
		if pair.DepositAddress != nil && *pair.DepositAddress == depositAddress {
			return pair, nil
		}
	}
	return nil, nil
}

type fakeConversionRepo struct {
	mu          sync.Mutex
	nextID      uint
	conversions map[uint]*models.Conversion
}

func newFakeConversionRepo() *fakeConversionRepo {
	return &fakeConversionRepo{nextID: 1, conversions: make(map[uint]*models.Conversion)}
}

func (r *fakeConversionRepo) Create(ctx context.Context, conversion *models.Conversion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversion.ID = r.nextID
	conversion.CreatedAt = time.Now()
	r.nextID++
	r.conversions[conversion.ID] = conversion
	return nil
}

func (r *fakeConversionRepo) GetByConversionID(ctx context.Context, conversionID string) (*models.Conversion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conversion := range r.conversions {
		if conversion.ConversionID == conversionID {
			return conversion, nil
		}
	}
	return nil, apperrors.BadRequest(apperrors.CodeConversionNotFound, "conversion %s does not exist", conversionID)
}

func (r *fakeConversionRepo) FindLatestPending(ctx context.Context, walletPairID uint) (*models.Conversion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Conversion
	for _, conversion := range r.conversions {
		if conversion.WalletPairID == walletPairID && conversion.Status == models.ConversionStatusUserInitiated {
			if latest == nil || conversion.ID > latest.ID {
				latest = conversion
			}
		}
	}
	return latest, nil
}

func (r *fakeConversionRepo) FindActiveByWalletPair(ctx context.Context, walletPairID uint) (*models.Conversion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Conversion
	for _, conversion := range r.conversions {
		if conversion.WalletPairID != walletPairID {
			continue
		}
		if conversion.Status == models.ConversionStatusUserInitiated || conversion.Status == models.ConversionStatusProcessing {
			if latest == nil || conversion.ID > latest.ID {
				latest = conversion
			}
		}
	}
	return latest, nil
}

func (r *fakeConversionRepo) UpdateStatus(ctx context.Context, id uint, fromStatuses []models.ConversionStatus, to models.ConversionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversion, ok := r.conversions[id]
	if !ok {
		return nil
	}
	for _, from := range fromStatuses {
		if conversion.Status == from {
			conversion.Status = to
			return nil
		}
	}
	return nil
}

func (r *fakeConversionRepo) UpdateAmounts(ctx context.Context, id uint, deposit, claim, fee decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conversion, ok := r.conversions[id]; ok {
		conversion.DepositAmount = deposit
		conversion.ClaimAmount = claim
		conversion.FeeAmount = fee
	}
	return nil
}

func (r *fakeConversionRepo) SetClaimSignature(ctx context.Context, id uint, signature string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conversion, ok := r.conversions[id]; ok {
		conversion.ClaimSignature = &signature
	}
	return nil
}

func (r *fakeConversionRepo) SumLockedDeposits(ctx context.Context, tokenPairID uint) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (r *fakeConversionRepo) ExpireOlderThan(ctx context.Context, tokenPairIDs []uint, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, conversion := range r.conversions {
		if conversion.Status == models.ConversionStatusUserInitiated && conversion.CreatedAt.Before(cutoff) {
			conversion.Status = models.ConversionStatusExpired
			count++
		}
	}
	return count, nil
}

type fakeTransactionRepo struct {
	mu           sync.Mutex
	nextGroupID  uint
	nextTxID     uint
	groups       map[uint]*models.ConversionTransaction
	transactions []*models.Transaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{
		nextGroupID: 1,
		nextTxID:    1,
		groups:      make(map[uint]*models.ConversionTransaction),
	}
}

func (r *fakeTransactionRepo) CreateGroup(ctx context.Context, group *models.ConversionTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	group.ID = r.nextGroupID
	r.nextGroupID++
	r.groups[group.ID] = group
	return nil
}

func (r *fakeTransactionRepo) UpdateGroupStatus(ctx context.Context, groupID uint, status models.ConversionTransactionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if group, ok := r.groups[groupID]; ok {
		group.Status = status
	}
	return nil
}

func (r *fakeTransactionRepo) FindOpenGroup(ctx context.Context, conversionRowID uint) (*models.ConversionTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.ConversionTransaction
	for _, group := range r.groups {
		if group.ConversionID == conversionRowID && group.Status == models.ConversionTransactionProcessing {
			if latest == nil || group.ID > latest.ID {
				latest = group
			}
		}
	}
	return latest, nil
}

func (r *fakeTransactionRepo) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.transactions {
		if existing.TxHash == tx.TxHash {
			return apperrors.Conflict(apperrors.CodeTransactionAlreadyProcessed,
				"transaction hash %s already recorded", tx.TxHash)
		}
	}
	tx.ID = r.nextTxID
	r.nextTxID++
	r.transactions = append(r.transactions, tx)
	return nil
}

func (r *fakeTransactionRepo) GetByHash(ctx context.Context, txHash string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.TxHash == txHash {
			return tx, nil
		}
	}
	return nil, nil
}

func (r *fakeTransactionRepo) ConfirmTransaction(ctx context.Context, id uint, amount decimal.Decimal, confirmation int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.ID == id && tx.Status == models.TransactionWaitingForConfirmation {
			tx.Status = models.TransactionSuccess
			tx.Amount = amount
			tx.Confirmation = confirmation
		}
	}
	return nil
}

func (r *fakeTransactionRepo) ListByConversion(ctx context.Context, conversionRowID uint) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Transaction
	for _, tx := range r.transactions {
		if group, ok := r.groups[tx.ConversionTransactionID]; ok && group.ConversionID == conversionRowID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// fakeAdapter is a scriptable chain adapter.
type fakeAdapter struct {
	name              models.BlockchainName
	currentBlock      uint64
	confirmations     map[string]int64
	events            map[string][]chains.ConversionEvent
	balance           decimal.Decimal
	mintCalls         []chains.BridgeAction
	burnCalls         []chains.BridgeAction
	nextTxHash        string
	lastEventDecimals int32
}

func newFakeAdapter(name models.BlockchainName) *fakeAdapter {
	return &fakeAdapter{
		name:          name,
		currentBlock:  1000,
		confirmations: make(map[string]int64),
		events:        make(map[string][]chains.ConversionEvent),
		balance:       decimal.NewFromInt(1000000),
		nextTxHash:    "0xsubmitted",
	}
}

func (a *fakeAdapter) Name() models.BlockchainName { return a.name }

func (a *fakeAdapter) CurrentBlock(ctx context.Context) (uint64, error) { return a.currentBlock, nil }

func (a *fakeAdapter) Confirmations(ctx context.Context, txHash string) (int64, error) {
	confirmations, ok := a.confirmations[txHash]
	if !ok {
		return 0, apperrors.Retryable(apperrors.CodeTransactionNotFound, "transaction %s not yet visible", txHash)
	}
	return confirmations, nil
}

func (a *fakeAdapter) ConversionEvents(ctx context.Context, txHash string, decimals int32) ([]chains.ConversionEvent, error) {
	a.lastEventDecimals = decimals
	return a.events[txHash], nil
}

func (a *fakeAdapter) Mint(ctx context.Context, action chains.BridgeAction) (string, error) {
	a.mintCalls = append(a.mintCalls, action)
	return a.nextTxHash, nil
}

func (a *fakeAdapter) Burn(ctx context.Context, action chains.BridgeAction) (string, error) {
	a.burnCalls = append(a.burnCalls, action)
	return a.nextTxHash, nil
}

func (a *fakeAdapter) BridgeBalance(ctx context.Context, tokenContract string, decimals int32) (decimal.Decimal, error) {
	return a.balance, nil
}

func (a *fakeAdapter) DeriveDepositAddress(ctx context.Context, walletPairKey string) (string, error) {
	return "addr1_escrow_" + walletPairKey, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*ActivityEvent
}

func (p *fakePublisher) PublishBridgeAction(ctx context.Context, event *ActivityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, event)
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	updates []models.ConversionStatus
}

func (n *fakeNotifier) NotifyStatus(conversionID string, status models.ConversionStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, status)
}
