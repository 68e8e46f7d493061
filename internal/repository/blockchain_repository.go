package repository

import (
	"context"
	"errors"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/models"

	"gorm.io/gorm"
)

// BlockchainRepository defines read access to chain reference data.
type BlockchainRepository interface {
	GetByName(ctx context.Context, name models.BlockchainName) (*models.Blockchain, error)
	GetByID(ctx context.Context, id uint) (*models.Blockchain, error)
	List(ctx context.Context) ([]*models.Blockchain, error)
}

type blockchainRepository struct {
	db *gorm.DB
}

// NewBlockchainRepository creates a new BlockchainRepository instance
func NewBlockchainRepository(db *gorm.DB) BlockchainRepository {
	return &blockchainRepository{db: db}
}

func (r *blockchainRepository) GetByName(ctx context.Context, name models.BlockchainName) (*models.Blockchain, error) {
	var chain models.Blockchain
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&chain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Internal(apperrors.CodeMissingReferenceData, "blockchain %s is not registered", name)
		}
		return nil, err
	}
	return &chain, nil
}

func (r *blockchainRepository) GetByID(ctx context.Context, id uint) (*models.Blockchain, error) {
	var chain models.Blockchain
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&chain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Internal(apperrors.CodeMissingReferenceData, "blockchain id %d is not registered", id)
		}
		return nil, err
	}
	return &chain, nil
}

func (r *blockchainRepository) List(ctx context.Context) ([]*models.Blockchain, error) {
	var chains []*models.Blockchain
	if err := r.db.WithContext(ctx).Order("id").Find(&chains).Error; err != nil {
		return nil, err
	}
	return chains, nil
}
