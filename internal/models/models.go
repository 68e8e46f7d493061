package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BlockchainName identifies a supported chain.
type BlockchainName string

const (
	BlockchainEthereum BlockchainName = "ethereum"
	BlockchainCardano  BlockchainName = "cardano"
	BlockchainBinance  BlockchainName = "binance"
)

// IsEVM reports whether the chain uses account-based EVM semantics.
func (n BlockchainName) IsEVM() bool {
	return n == BlockchainEthereum || n == BlockchainBinance
}

// TxOperation is the on-chain operation a Transaction records.
type TxOperation string

const (
	OperationTokenReceived    TxOperation = "TOKEN_RECEIVED"
	OperationTokenBurnt       TxOperation = "TOKEN_BURNT"
	OperationTokenMinted      TxOperation = "TOKEN_MINTED"
	OperationTokenTransferred TxOperation = "TOKEN_TRANSFERRED"
)

// ConversionStatus is the conversion lifecycle state.
// USER_INITIATED -> PROCESSING -> WAITING_FOR_CLAIM -> CLAIM_INITIATED -> SUCCESS
// EXPIRED is reachable from USER_INITIATED only. SUCCESS and EXPIRED are terminal.
type ConversionStatus string

const (
	ConversionStatusUserInitiated   ConversionStatus = "USER_INITIATED"
	ConversionStatusProcessing      ConversionStatus = "PROCESSING"
	ConversionStatusWaitingForClaim ConversionStatus = "WAITING_FOR_CLAIM"
	ConversionStatusClaimInitiated  ConversionStatus = "CLAIM_INITIATED"
	ConversionStatusSuccess         ConversionStatus = "SUCCESS"
	ConversionStatusExpired         ConversionStatus = "EXPIRED"
)

// CreatedBy records which actor created a conversion.
type CreatedBy string

const (
	CreatedByDApp    CreatedBy = "DApp"
	CreatedByBackend CreatedBy = "Backend"
)

type ConversionTransactionStatus string

const (
	ConversionTransactionProcessing ConversionTransactionStatus = "PROCESSING"
	ConversionTransactionSuccess    ConversionTransactionStatus = "SUCCESS"
	ConversionTransactionFailed     ConversionTransactionStatus = "FAILED"
)

type TransactionStatus string

const (
	TransactionWaitingForConfirmation TransactionStatus = "WAITING_FOR_CONFIRMATION"
	TransactionSuccess                TransactionStatus = "SUCCESS"
)

type TransactionVisibility string

const (
	VisibilityInternal TransactionVisibility = "INTERNAL"
	VisibilityExternal TransactionVisibility = "EXTERNAL"
)

// Blockchain is immutable reference data, seeded by migration.
type Blockchain struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	Name              BlockchainName `json:"name" gorm:"uniqueIndex;size:32;not null"`
	NetworkID         string         `json:"network_id" gorm:"size:32;not null"` // EVM chain id or Cardano network magic
	BlockConfirmation int64          `json:"block_confirmation" gorm:"not null"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Token is reference data for a convertible asset on one chain.
type Token struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	Symbol          string     `json:"symbol" gorm:"size:32;not null"`
	AllowedDecimal  int32      `json:"allowed_decimal" gorm:"not null"`
	BlockchainID    uint       `json:"blockchain_id" gorm:"not null;index"`
	Blockchain      Blockchain `json:"blockchain" gorm:"foreignKey:BlockchainID"`
	ContractAddress string     `json:"contract_address" gorm:"size:128"` // EVM token contract or Cardano policy id
	CreatedAt       time.Time  `json:"created_at"`
}

// TokenPair is one supported conversion direction with its bounds and fee.
type TokenPair struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	FromTokenID uint            `json:"from_token_id" gorm:"not null;uniqueIndex:idx_token_pair_direction"`
	ToTokenID   uint            `json:"to_token_id" gorm:"not null;uniqueIndex:idx_token_pair_direction"`
	FromToken   Token           `json:"from_token" gorm:"foreignKey:FromTokenID"`
	ToToken     Token           `json:"to_token" gorm:"foreignKey:ToTokenID"`
	MinValue    decimal.Decimal `json:"min_value" gorm:"type:numeric(32,18);not null"`
	MaxValue    decimal.Decimal `json:"max_value" gorm:"type:numeric(32,18);not null"`
	// Fee charged as a percentage of the source amount. Zero means no fee.
	FeePercentage decimal.Decimal `json:"fee_percentage" gorm:"type:numeric(32,18);not null;default:0"`
	// Multiplier applied when the pair crosses decimal precisions. Nil means 1:1.
	ConversionRatio *decimal.Decimal `json:"conversion_ratio" gorm:"type:numeric(32,18)"`
	IsLiquid        bool             `json:"is_liquid" gorm:"not null;default:false"`
	ContractAddress string           `json:"contract_address" gorm:"size:128"` // bridge contract on the liquid side
	CreatedAt       time.Time        `json:"created_at"`
}

// WalletPair binds a user's (from, to) address pair to a token pair.
// Created once and reused across conversions with the same addresses.
type WalletPair struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	TokenPairID uint      `json:"token_pair_id" gorm:"not null;uniqueIndex:idx_wallet_pair_addresses"`
	TokenPair   TokenPair `json:"-" gorm:"foreignKey:TokenPairID"`
	FromAddress string    `json:"from_address" gorm:"size:128;not null;uniqueIndex:idx_wallet_pair_addresses"`
	ToAddress   string    `json:"to_address" gorm:"size:128;not null;uniqueIndex:idx_wallet_pair_addresses"`
	// Chain-derived escrow address users send to when Cardano is the deposit side.
	DepositAddress    *string    `json:"deposit_address" gorm:"size:128;index"`
	Signature         string     `json:"-" gorm:"size:256"`
	SignatureMetadata string     `json:"-" gorm:"type:text"`
	SignatureExpiry   *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Conversion is one user-initiated cross-chain transfer and its lifecycle.
type Conversion struct {
	ID             uint             `json:"-" gorm:"primaryKey"` // internal row id
	ConversionID   string           `json:"id" gorm:"uniqueIndex;size:36;not null"`
	WalletPairID   uint             `json:"wallet_pair_id" gorm:"not null;index"`
	WalletPair     WalletPair       `json:"-" gorm:"foreignKey:WalletPairID"`
	DepositAmount  decimal.Decimal  `json:"deposit_amount" gorm:"type:numeric(32,18);not null"`
	ClaimAmount    decimal.Decimal  `json:"claim_amount" gorm:"type:numeric(32,18);not null"`
	FeeAmount      decimal.Decimal  `json:"fee_amount" gorm:"type:numeric(32,18);not null"`
	Status         ConversionStatus `json:"status" gorm:"size:32;not null;index:idx_conversion_status_created"`
	ClaimSignature *string          `json:"-" gorm:"size:256"`
	CreatedBy      CreatedBy        `json:"created_by" gorm:"size:16;not null"`
	CreatedAt      time.Time        `json:"created_at" gorm:"index:idx_conversion_status_created"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Terminal reports whether the conversion can no longer change state.
func (c *Conversion) Terminal() bool {
	return c.Status == ConversionStatusSuccess || c.Status == ConversionStatusExpired
}

// ConversionTransaction groups the chain transactions of one leg
// (deposit side or claim side) of a conversion.
type ConversionTransaction struct {
	ID           uint                        `json:"id" gorm:"primaryKey"`
	ConversionID uint                        `json:"conversion_id" gorm:"not null;index"`
	Status       ConversionTransactionStatus `json:"status" gorm:"size:16;not null"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

// Transaction is a single observed or executed on-chain transaction.
// TxHash is globally unique once assigned; the unique index is the
// replay defense: a second event for the same hash must fail to insert.
// The auto-increment ID doubles as the creation-order key the activity
// engine walks.
type Transaction struct {
	ID                      uint                  `json:"id" gorm:"primaryKey"`
	ConversionTransactionID uint                  `json:"conversion_transaction_id" gorm:"not null;index"`
	TokenID                 uint                  `json:"token_id" gorm:"not null"`
	Visibility              TransactionVisibility `json:"visibility" gorm:"size:16;not null"`
	Operation               TxOperation           `json:"operation" gorm:"size:32;not null"`
	TxHash                  string                `json:"transaction_hash" gorm:"uniqueIndex;size:128;not null"`
	Amount                  decimal.Decimal       `json:"transaction_amount" gorm:"type:numeric(32,18);not null"`
	Confirmation            int64                 `json:"confirmation" gorm:"not null;default:0"`
	Status                  TransactionStatus     `json:"status" gorm:"size:32;not null"`
	CreatedAt               time.Time             `json:"created_at"`
	UpdatedAt               time.Time             `json:"updated_at"`
}
