package chains

import (
	"context"
	"time"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/models"

	"github.com/shopspring/decimal"
)

// ConversionEvent is a decoded bridge event from one on-chain transaction.
type ConversionEvent struct {
	TxHash       string
	Operation    models.TxOperation
	ConversionID string
	Amount       decimal.Decimal
	TokenHolder  string
}

// BridgeAction is a mint or burn the backend executes on a chain.
type BridgeAction struct {
	TokenContract string
	Amount        decimal.Decimal
	Decimals      int32
	Address       string // destination for mint, source for burn
	ConversionID  string
}

// Adapter is the uniform interface over one blockchain's read and write
// operations. Implementations are EVM (account-based) and Cardano (UTXO).
type Adapter interface {
	Name() models.BlockchainName
	CurrentBlock(ctx context.Context) (uint64, error)
	// Confirmations returns the confirmation count of a transaction.
	// A hash not yet visible on chain is a retryable condition.
	Confirmations(ctx context.Context, txHash string) (int64, error)
	// ConversionEvents decodes the bridge events emitted by a transaction.
	ConversionEvents(ctx context.Context, txHash string, decimals int32) ([]ConversionEvent, error)
	Mint(ctx context.Context, action BridgeAction) (string, error)
	Burn(ctx context.Context, action BridgeAction) (string, error)
	// BridgeBalance returns the bridge contract's spendable token balance.
	BridgeBalance(ctx context.Context, tokenContract string, decimals int32) (decimal.Decimal, error)
}

// DepositAddressDeriver is implemented by chains whose deposit side uses a
// derived escrow address (Cardano).
type DepositAddressDeriver interface {
	DeriveDepositAddress(ctx context.Context, walletPairKey string) (string, error)
}

// Registry resolves adapters by blockchain name.
type Registry struct {
	adapters map[models.BlockchainName]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.BlockchainName]Adapter)}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name models.BlockchainName) (Adapter, error) {
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, apperrors.Internal(apperrors.CodeMissingReferenceData, "no chain adapter registered for %s", name)
	}
	return adapter, nil
}

// AwaitConfirmations polls until the transaction reaches the required
// confirmation count. The retry budget is fixed and externally configured;
// exhausting it returns a retryable error so the consumer redelivers the
// event instead of failing it.
func AwaitConfirmations(ctx context.Context, adapter Adapter, txHash string, required int64, interval time.Duration, maxRetries int) (int64, error) {
	var confirmations int64
	for attempt := 0; ; attempt++ {
		var err error
		confirmations, err = adapter.Confirmations(ctx, txHash)
		if err == nil && confirmations >= required {
			return confirmations, nil
		}
		if err != nil && !apperrors.IsRetryable(err) {
			return 0, err
		}
		if attempt >= maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return 0, apperrors.Retryable(apperrors.CodeBlockConfirmationNotEnough,
				"confirmation polling cancelled for %s", txHash)
		case <-time.After(interval):
		}
	}
	return confirmations, apperrors.Retryable(apperrors.CodeBlockConfirmationNotEnough,
		"transaction %s has %d of %d required confirmations", txHash, confirmations, required)
}
