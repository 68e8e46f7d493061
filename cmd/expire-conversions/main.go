// One-shot TTL sweep for cron usage. Expires USER_INITIATED conversions
// older than their source chain's configured TTL and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bridge-backend/internal/config"
	"bridge-backend/internal/db"
	"bridge-backend/internal/models"
	"bridge-backend/internal/repository"
	"bridge-backend/internal/services"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logrus.SetFormatter(&logrus.JSONFormatter{})

	if err := config.LoadConfig(*configPath); err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	db.InitDB()

	policies := make(map[models.BlockchainName]services.ChainPolicy)
	for networkName, network := range config.AppConfig.Blockchain.Networks {
		if !network.Enabled {
			continue
		}
		policies[models.BlockchainName(networkName)] = services.ChainPolicy{
			ConversionTTL: time.Duration(network.ConversionExpiryMinutes) * time.Minute,
		}
	}

	orchestrator := services.NewConversionOrchestrator(
		repository.NewTokenPairRepository(db.DB),
		repository.NewWalletPairRepository(db.DB),
		repository.NewConversionRepository(db.DB),
		repository.NewTransactionRepository(db.DB),
		nil, nil, nil, policies, nil,
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	expired, err := orchestrator.ExpireConversions(ctx)
	if err != nil {
		logrus.WithError(err).Error("sweep failed")
		os.Exit(1)
	}
	fmt.Printf("expired %d conversions\n", expired)
}
