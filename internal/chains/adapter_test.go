package chains

import (
	"context"
	"testing"
	"time"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAdapter returns canned confirmation counts, one per call.
type scriptedAdapter struct {
	name   models.BlockchainName
	script []confirmationResult
	calls  int
}

type confirmationResult struct {
	confirmations int64
	err           error
}

func (a *scriptedAdapter) Name() models.BlockchainName { return a.name }

func (a *scriptedAdapter) CurrentBlock(ctx context.Context) (uint64, error) { return 0, nil }

func (a *scriptedAdapter) Confirmations(ctx context.Context, txHash string) (int64, error) {
	result := a.script[len(a.script)-1]
	if a.calls < len(a.script) {
		result = a.script[a.calls]
	}
	a.calls++
	return result.confirmations, result.err
}

func (a *scriptedAdapter) ConversionEvents(ctx context.Context, txHash string, decimals int32) ([]ConversionEvent, error) {
	return nil, nil
}

func (a *scriptedAdapter) Mint(ctx context.Context, action BridgeAction) (string, error) {
	return "", nil
}

func (a *scriptedAdapter) Burn(ctx context.Context, action BridgeAction) (string, error) {
	return "", nil
}

func (a *scriptedAdapter) BridgeBalance(ctx context.Context, tokenContract string, decimals int32) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func TestAwaitConfirmationsImmediateSuccess(t *testing.T) {
	adapter := &scriptedAdapter{name: models.BlockchainEthereum, script: []confirmationResult{{confirmations: 12}}}

	confirmations, err := AwaitConfirmations(context.Background(), adapter, "0xabc", 12, time.Millisecond, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 12, confirmations)
	assert.Equal(t, 1, adapter.calls)
}

func TestAwaitConfirmationsPollsUntilReached(t *testing.T) {
	adapter := &scriptedAdapter{name: models.BlockchainEthereum, script: []confirmationResult{
		{err: apperrors.Retryable(apperrors.CodeTransactionNotFound, "not visible yet")},
		{confirmations: 1},
		{confirmations: 3},
	}}

	confirmations, err := AwaitConfirmations(context.Background(), adapter, "0xabc", 2, time.Millisecond, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 3, confirmations)
	assert.Equal(t, 3, adapter.calls)
}

func TestAwaitConfirmationsExhaustsRetryBudget(t *testing.T) {
	adapter := &scriptedAdapter{name: models.BlockchainEthereum, script: []confirmationResult{{confirmations: 1}}}

	_, err := AwaitConfirmations(context.Background(), adapter, "0xabc", 6, time.Millisecond, 2)
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, apperrors.CodeBlockConfirmationNotEnough, apperrors.CodeOf(err))
	assert.Equal(t, 3, adapter.calls) // initial attempt plus two retries
}

func TestAwaitConfirmationsStopsOnFatalError(t *testing.T) {
	fatal := apperrors.Internal(apperrors.CodeChainUnavailable, "rpc down")
	adapter := &scriptedAdapter{name: models.BlockchainEthereum, script: []confirmationResult{{err: fatal}}}

	_, err := AwaitConfirmations(context.Background(), adapter, "0xabc", 6, time.Millisecond, 5)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeChainUnavailable, apperrors.CodeOf(err))
	assert.Equal(t, 1, adapter.calls)
}

func TestAwaitConfirmationsHonorsContextCancellation(t *testing.T) {
	adapter := &scriptedAdapter{name: models.BlockchainEthereum, script: []confirmationResult{{confirmations: 0}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AwaitConfirmations(ctx, adapter, "0xabc", 6, time.Hour, 5)
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestRegistryResolvesByName(t *testing.T) {
	eth := &scriptedAdapter{name: models.BlockchainEthereum}
	registry := NewRegistry(eth)

	resolved, err := registry.Get(models.BlockchainEthereum)
	require.NoError(t, err)
	assert.Same(t, Adapter(eth), resolved)

	_, err = registry.Get(models.BlockchainCardano)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeMissingReferenceData, apperrors.CodeOf(err))
}
