package repository

import (
	"context"
	"errors"
	"time"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionRepository defines data access for transaction groups and
// chain transactions.
type TransactionRepository interface {
	CreateGroup(ctx context.Context, group *models.ConversionTransaction) error
	UpdateGroupStatus(ctx context.Context, groupID uint, status models.ConversionTransactionStatus) error
	// FindOpenGroup returns the conversion's PROCESSING group, or nil.
	FindOpenGroup(ctx context.Context, conversionRowID uint) (*models.ConversionTransaction, error)
	// CreateTransaction inserts a new chain transaction. A duplicate hash
	// surfaces as a Conflict error via the unique index, never as a second
	// row. This is insert-or-fail, not read-check-then-insert.
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetByHash(ctx context.Context, txHash string) (*models.Transaction, error)
	ConfirmTransaction(ctx context.Context, id uint, amount decimal.Decimal, confirmation int64) error
	// ListByConversion returns all transactions of a conversion in creation
	// order, the order the activity engine walks.
	ListByConversion(ctx context.Context, conversionRowID uint) ([]*models.Transaction, error)
}

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new TransactionRepository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) CreateGroup(ctx context.Context, group *models.ConversionTransaction) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *transactionRepository) UpdateGroupStatus(ctx context.Context, groupID uint, status models.ConversionTransactionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.ConversionTransaction{}).
		Where("id = ?", groupID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}

func (r *transactionRepository) FindOpenGroup(ctx context.Context, conversionRowID uint) (*models.ConversionTransaction, error) {
	var group models.ConversionTransaction
	err := r.db.WithContext(ctx).
		Where("conversion_id = ? AND status = ?", conversionRowID, models.ConversionTransactionProcessing).
		Order("id DESC").
		First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *transactionRepository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	err := r.db.WithContext(ctx).Create(tx).Error
	if err != nil && isUniqueViolation(err) {
		return apperrors.Conflict(apperrors.CodeTransactionAlreadyProcessed,
			"transaction hash %s already recorded", tx.TxHash)
	}
	return err
}

func (r *transactionRepository) GetByHash(ctx context.Context, txHash string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) ConfirmTransaction(ctx context.Context, id uint, amount decimal.Decimal, confirmation int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionWaitingForConfirmation).
		Updates(map[string]interface{}{
			"status":       models.TransactionSuccess,
			"amount":       amount,
			"confirmation": confirmation,
			"updated_at":   time.Now(),
		}).Error
}

func (r *transactionRepository) ListByConversion(ctx context.Context, conversionRowID uint) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := r.db.WithContext(ctx).
		Joins("JOIN conversion_transactions ON conversion_transactions.id = transactions.conversion_transaction_id").
		Where("conversion_transactions.conversion_id = ?", conversionRowID).
		Order("transactions.id ASC").
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// isUniqueViolation reports whether err is a postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// pgx driver reports through gorm's translated error
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
