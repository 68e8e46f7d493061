package services

import (
	"context"
	"testing"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ethChain     = models.Blockchain{ID: 1, Name: models.BlockchainEthereum, NetworkID: "1", BlockConfirmation: 2}
	bscChain     = models.Blockchain{ID: 2, Name: models.BlockchainBinance, NetworkID: "56", BlockConfirmation: 2}
	cardanoChain = models.Blockchain{ID: 3, Name: models.BlockchainCardano, NetworkID: "764824073", BlockConfirmation: 2}

	ethToken = models.Token{ID: 10, Symbol: "WTKN", AllowedDecimal: 18, BlockchainID: 1, Blockchain: ethChain,
		ContractAddress: "0x1111111111111111111111111111111111111111"}
	bscToken = models.Token{ID: 20, Symbol: "WTKN", AllowedDecimal: 18, BlockchainID: 2, Blockchain: bscChain,
		ContractAddress: "0x2222222222222222222222222222222222222222"}
	adaToken = models.Token{ID: 30, Symbol: "TKN", AllowedDecimal: 6, BlockchainID: 3, Blockchain: cardanoChain,
		ContractAddress: "policy1abc"}
)

// evmPairFixture is ethereum -> binance, cardanoPairFixture is cardano -> ethereum.
func evmPairFixture() *models.TokenPair {
	return &models.TokenPair{
		ID: 1, FromTokenID: ethToken.ID, ToTokenID: bscToken.ID,
		FromToken: ethToken, ToToken: bscToken,
		MinValue: decimal.NewFromInt(1), MaxValue: decimal.NewFromInt(10000),
		FeePercentage: decimal.NewFromInt(1), IsLiquid: true,
		ContractAddress: "0x3333333333333333333333333333333333333333",
	}
}

func cardanoPairFixture() *models.TokenPair {
	return &models.TokenPair{
		ID: 2, FromTokenID: adaToken.ID, ToTokenID: ethToken.ID,
		FromToken: adaToken, ToToken: ethToken,
		MinValue: decimal.NewFromInt(1), MaxValue: decimal.NewFromInt(10000),
		FeePercentage: decimal.Zero,
	}
}

func engineFixture(t *testing.T, pair *models.TokenPair) (*ActivityEventEngine, *models.Conversion) {
	t.Helper()
	walletPairs := newFakeWalletPairRepo()
	walletPair := &models.WalletPair{TokenPairID: pair.ID, FromAddress: "from", ToAddress: "to"}
	require.NoError(t, walletPairs.Create(context.Background(), walletPair))

	tokenPairs := &fakeTokenPairRepo{pairs: map[uint]*models.TokenPair{pair.ID: pair}}
	engine := NewActivityEventEngine(walletPairs, tokenPairs)

	conversion := &models.Conversion{
		ID: 1, ConversionID: "c-1", WalletPairID: walletPair.ID,
		DepositAmount: decimal.NewFromInt(100),
		ClaimAmount:   decimal.NewFromInt(99),
		FeeAmount:     decimal.NewFromInt(1),
		Status:        models.ConversionStatusProcessing,
	}
	return engine, conversion
}

func TestNextEventWalksEVMSequence(t *testing.T) {
	engine, conversion := engineFixture(t, evmPairFixture())
	ctx := context.Background()

	next, err := engine.NextEvent(ctx, conversion, nil)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, models.BlockchainEthereum, next.BlockchainName)
	assert.Equal(t, models.OperationTokenBurnt, next.TxOperation)
	assert.True(t, next.TxAmount.Equal(conversion.DepositAmount))
	assert.Equal(t, ethToken.ID, next.TokenID)

	burn := &models.Transaction{ID: 1, TokenID: ethToken.ID, Operation: models.OperationTokenBurnt}
	next, err = engine.NextEvent(ctx, conversion, []*models.Transaction{burn})
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, models.BlockchainBinance, next.BlockchainName)
	assert.Equal(t, models.OperationTokenMinted, next.TxOperation)
	assert.True(t, next.TxAmount.Equal(conversion.ClaimAmount))

	mint := &models.Transaction{ID: 2, TokenID: bscToken.ID, Operation: models.OperationTokenMinted}
	next, err = engine.NextEvent(ctx, conversion, []*models.Transaction{burn, mint})
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextEventWalksCardanoSequence(t *testing.T) {
	engine, conversion := engineFixture(t, cardanoPairFixture())
	ctx := context.Background()

	expected := []models.TxOperation{
		models.OperationTokenReceived,
		models.OperationTokenBurnt,
		models.OperationTokenMinted,
	}
	var recorded []*models.Transaction
	for i, operation := range expected {
		next, err := engine.NextEvent(ctx, conversion, recorded)
		require.NoError(t, err)
		require.NotNil(t, next, "step %d", i)
		assert.Equal(t, operation, next.TxOperation)
		recorded = append(recorded, &models.Transaction{
			ID: uint(i + 1), TokenID: next.TokenID, Operation: operation,
		})
	}

	next, err := engine.NextEvent(ctx, conversion, recorded)
	require.NoError(t, err)
	assert.Nil(t, next)

	// Cardano receive and burn both carry the deposit amount; only the
	// destination mint switches to the claim amount.
	first, err := engine.NextEvent(ctx, conversion, nil)
	require.NoError(t, err)
	assert.True(t, first.TxAmount.Equal(conversion.DepositAmount))
}

func TestNextEventDivergenceIsFatal(t *testing.T) {
	engine, conversion := engineFixture(t, evmPairFixture())

	_, err := engine.NextEvent(context.Background(), conversion, []*models.Transaction{
		{ID: 1, TokenID: ethToken.ID, Operation: models.OperationTokenMinted},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
	assert.Equal(t, apperrors.CodeTransactionWronglyCreated, apperrors.CodeOf(err))
}

func TestNextEventTooManyTransactionsIsFatal(t *testing.T) {
	engine, conversion := engineFixture(t, evmPairFixture())

	txs := []*models.Transaction{
		{ID: 1, TokenID: ethToken.ID, Operation: models.OperationTokenBurnt},
		{ID: 2, TokenID: bscToken.ID, Operation: models.OperationTokenMinted},
		{ID: 3, TokenID: bscToken.ID, Operation: models.OperationTokenMinted},
	}
	_, err := engine.NextEvent(context.Background(), conversion, txs)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTransactionWronglyCreated, apperrors.CodeOf(err))
}

func TestNextEventRejectsCardanoToCardano(t *testing.T) {
	pair := cardanoPairFixture()
	pair.ToToken = adaToken
	pair.ToTokenID = adaToken.ID
	engine, conversion := engineFixture(t, pair)

	_, err := engine.NextEvent(context.Background(), conversion, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnsupportedChainPair, apperrors.CodeOf(err))
}

func TestActivityEventMatchesComparesByValue(t *testing.T) {
	event := &ActivityEvent{
		BlockchainName: models.BlockchainEthereum,
		ConversionID:   "c-1",
		TxAmount:       decimal.RequireFromString("1.0"),
		TxOperation:    models.OperationTokenMinted,
	}
	other := &ActivityEvent{
		BlockchainName: models.BlockchainEthereum,
		ConversionID:   "c-1",
		TxAmount:       decimal.RequireFromString("1.000"),
		TxOperation:    models.OperationTokenMinted,
	}
	assert.True(t, event.Matches(other))

	other.TxAmount = decimal.RequireFromString("1.001")
	assert.False(t, event.Matches(other))
	assert.False(t, event.Matches(nil))
}
