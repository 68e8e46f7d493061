package app

import (
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bridge-backend/internal/chains"
	"bridge-backend/internal/clients"
	"bridge-backend/internal/config"
	"bridge-backend/internal/db"
	"bridge-backend/internal/events"
	"bridge-backend/internal/models"
	"bridge-backend/internal/push"
	"bridge-backend/internal/repository"
	"bridge-backend/internal/services"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container holds every wired component of the service.
type Container struct {
	DB *gorm.DB

	BlockchainRepo  repository.BlockchainRepository
	TokenPairRepo   repository.TokenPairRepository
	WalletPairRepo  repository.WalletPairRepository
	ConversionRepo  repository.ConversionRepository
	TransactionRepo repository.TransactionRepository

	Registry     *chains.Registry
	Engine       *services.ActivityEventEngine
	Reconciler   *services.EventReconciler
	Orchestrator *services.ConversionOrchestrator

	NATSClient *clients.NATSClient
	Consumer   *events.Consumer
	Hub        *push.Hub
}

// Initialize connects the database and queue and wires the service graph.
func Initialize() (*Container, error) {
	db.InitDB()

	c := &Container{DB: db.DB}
	c.BlockchainRepo = repository.NewBlockchainRepository(db.DB)
	c.TokenPairRepo = repository.NewTokenPairRepository(db.DB)
	c.WalletPairRepo = repository.NewWalletPairRepository(db.DB)
	c.ConversionRepo = repository.NewConversionRepository(db.DB)
	c.TransactionRepo = repository.NewTransactionRepository(db.DB)

	adapters, signers, policies, confirmation, err := buildChainLayer()
	if err != nil {
		return nil, err
	}
	c.Registry = chains.NewRegistry(adapters...)
	c.Engine = services.NewActivityEventEngine(c.WalletPairRepo, c.TokenPairRepo)
	c.Hub = push.NewHub(nil)

	c.NATSClient, err = clients.NewNATSClient(config.AppConfig.NATS)
	if err != nil {
		return nil, err
	}
	publisher := events.NewNATSBridgePublisher(c.NATSClient)

	c.Reconciler = services.NewEventReconciler(
		c.BlockchainRepo, c.TokenPairRepo, c.WalletPairRepo,
		c.ConversionRepo, c.TransactionRepo,
		c.Engine, c.Registry, publisher, c.Hub, confirmation,
	)
	c.Orchestrator = services.NewConversionOrchestrator(
		c.TokenPairRepo, c.WalletPairRepo, c.ConversionRepo, c.TransactionRepo,
		c.Engine, c.Registry, signers, policies, c.Hub,
	)
	c.Consumer = events.NewConsumer(c.NATSClient, c.Reconciler)
	return c, nil
}

// Close releases external connections.
func (c *Container) Close() {
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
}

func buildChainLayer() (
	[]chains.Adapter,
	map[models.BlockchainName]*ecdsa.PrivateKey,
	map[models.BlockchainName]services.ChainPolicy,
	map[models.BlockchainName]services.ConfirmationPolicy,
	error,
) {
	var adapters []chains.Adapter
	signers := make(map[models.BlockchainName]*ecdsa.PrivateKey)
	policies := make(map[models.BlockchainName]services.ChainPolicy)
	confirmation := make(map[models.BlockchainName]services.ConfirmationPolicy)

	for networkName, network := range config.AppConfig.Blockchain.Networks {
		if !network.Enabled {
			logrus.WithField("network", networkName).Info("network disabled, skipping")
			continue
		}
		name := models.BlockchainName(networkName)

		if name == models.BlockchainCardano {
			adapters = append(adapters, chains.NewCardanoAdapter(network.WalletAPIURL))
		} else {
			chainID, err := strconv.ParseInt(network.ChainID, 10, 64)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("invalid chain id %q for %s: %w", network.ChainID, networkName, err)
			}
			adapter, err := chains.NewEVMAdapter(name, network.RPCEndpoint, network.BridgeContract, network.PrivateKey, chainID)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			adapters = append(adapters, adapter)

			if network.PrivateKey != "" {
				key, err := crypto.HexToECDSA(strings.TrimPrefix(network.PrivateKey, "0x"))
				if err != nil {
					return nil, nil, nil, nil, fmt.Errorf("invalid private key for %s: %w", networkName, err)
				}
				signers[name] = key
			}
		}

		policies[name] = services.ChainPolicy{
			SignatureExpiryBlocks: network.SignatureExpiryBlocks,
			ConversionTTL:         time.Duration(network.ConversionExpiryMinutes) * time.Minute,
		}
		confirmation[name] = services.ConfirmationPolicy{
			Interval:   time.Duration(network.ConfirmationRetrySeconds) * time.Second,
			MaxRetries: network.ConfirmationMaxRetries,
		}
		logrus.WithField("network", networkName).Info("chain adapter registered")
	}

	if len(adapters) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("no enabled networks in config")
	}
	return adapters, signers, policies, confirmation, nil
}
