package db

import (
	"errors"
	"log"

	"bridge-backend/internal/config"
	"bridge-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB() {
	var err error

	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		log.Fatalf("Database DSN is required")
	}

	DB, err = gorm.Open(postgres.Open(config.AppConfig.Database.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	if err := DB.AutoMigrate(
		&models.Blockchain{},
		&models.Token{},
		&models.TokenPair{},
		&models.WalletPair{},
		&models.Conversion{},
		&models.ConversionTransaction{},
		&models.Transaction{},
	); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	seedBlockchains(DB)
}

// seedBlockchains creates the immutable chain reference rows when absent.
// Reference data is created by migration and never mutated at runtime.
func seedBlockchains(db *gorm.DB) {
	chains := []models.Blockchain{
		{Name: models.BlockchainEthereum, NetworkID: "1", BlockConfirmation: 12},
		{Name: models.BlockchainBinance, NetworkID: "56", BlockConfirmation: 15},
		{Name: models.BlockchainCardano, NetworkID: "764824073", BlockConfirmation: 10},
	}
	for _, chain := range chains {
		var existing models.Blockchain
		if err := db.Where("name = ?", chain.Name).First(&existing).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&chain).Error; err != nil {
				log.Printf("failed to seed blockchain %s: %v", chain.Name, err)
			}
		}
	}
}
