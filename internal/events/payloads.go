package events

import (
	"encoding/json"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/models"
	"bridge-backend/internal/services"

	"github.com/shopspring/decimal"
)

// evmEventPayload is the scanner's EVM notification. The actual event
// fields travel double-encoded in json_str.
type evmEventPayload struct {
	Name string `json:"name"`
	Data struct {
		TransactionHash string `json:"transactionHash"`
		Event           string `json:"event"`
		JSONStr         string `json:"json_str"`
	} `json:"data"`
}

type evmEventDetail struct {
	ConversionID string          `json:"conversionId"`
	Amount       decimal.Decimal `json:"amount"`
	TokenHolder  string          `json:"tokenHolder"`
}

// ParseEVMEvent decodes one EVM scanner notification into a normalized
// chain event. Any decoding failure is a single BadRequest: a payload that
// cannot be parsed will never parse on redelivery.
func ParseEVMEvent(chain models.BlockchainName, data []byte) (*services.ChainEvent, error) {
	var payload evmEventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidPayload, "malformed evm event payload: %v", err)
	}
	if payload.Data.TransactionHash == "" || payload.Data.Event == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidPayload, "evm event payload missing transaction hash or event name")
	}
	operation := models.TxOperation(payload.Data.Event)
	switch operation {
	case models.OperationTokenBurnt, models.OperationTokenMinted, models.OperationTokenTransferred:
	default:
		return nil, apperrors.BadRequest(apperrors.CodeInvalidPayload, "unknown evm event %q", payload.Data.Event)
	}

	var detail evmEventDetail
	if err := json.Unmarshal([]byte(payload.Data.JSONStr), &detail); err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidPayload, "malformed evm event json_str: %v", err)
	}

	return &services.ChainEvent{
		Blockchain:   chain,
		TxHash:       payload.Data.TransactionHash,
		Operation:    operation,
		ConversionID: detail.ConversionID,
		Amount:       detail.Amount,
		TokenHolder:  detail.TokenHolder,
	}, nil
}

// cardanoEnvelope is the scanner's Cardano notification: a record batch
// whose bodies each carry a double-encoded message.
type cardanoEnvelope struct {
	Records []struct {
		Body string `json:"body"`
	} `json:"Records"`
}

type cardanoRecordBody struct {
	Message string `json:"Message"`
}

type cardanoMessage struct {
	TxHash            string `json:"tx_hash"`
	Address           string `json:"address"`
	ConversionID      string `json:"conversion_id"`
	TransactionDetail struct {
		TxType        string          `json:"tx_type"`
		Confirmations int64           `json:"confirmations"`
		TxAmount      decimal.Decimal `json:"tx_amount"`
	} `json:"transaction_detail"`
	Asset struct {
		PolicyID  string `json:"policy_id"`
		AssetName string `json:"asset_name"`
	} `json:"asset"`
}

// ParseCardanoEvents decodes one Cardano scanner envelope, which can carry
// several records per delivery. TOKEN_RECEIVED records have no conversion
// id; the receiving escrow address identifies the wallet pair instead.
func ParseCardanoEvents(data []byte) ([]*services.ChainEvent, error) {
	var envelope cardanoEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidPayload, "malformed cardano envelope: %v", err)
	}
	if len(envelope.Records) == 0 {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidPayload, "cardano envelope has no records")
	}

	events := make([]*services.ChainEvent, 0, len(envelope.Records))
	for _, record := range envelope.Records {
		var body cardanoRecordBody
		if err := json.Unmarshal([]byte(record.Body), &body); err != nil {
			return nil, apperrors.BadRequest(apperrors.CodeInvalidPayload, "malformed cardano record body: %v", err)
		}
		var message cardanoMessage
		if err := json.Unmarshal([]byte(body.Message), &message); err != nil {
			return nil, apperrors.BadRequest(apperrors.CodeInvalidPayload, "malformed cardano message: %v", err)
		}
		if message.TxHash == "" {
			return nil, apperrors.BadRequest(apperrors.CodeInvalidPayload, "cardano message missing tx hash")
		}

		operation := models.TxOperation(message.TransactionDetail.TxType)
		event := &services.ChainEvent{
			Blockchain:   models.BlockchainCardano,
			TxHash:       message.TxHash,
			Operation:    operation,
			ConversionID: message.ConversionID,
			Amount:       message.TransactionDetail.TxAmount,
		}
		switch operation {
		case models.OperationTokenReceived:
			event.DepositAddress = message.Address
		case models.OperationTokenBurnt, models.OperationTokenMinted:
			event.TokenHolder = message.Address
		default:
			return nil, apperrors.BadRequest(apperrors.CodeInvalidPayload, "unknown cardano tx_type %q", message.TransactionDetail.TxType)
		}
		events = append(events, event)
	}
	return events, nil
}

// bridgeEventPayload is the nested wire shape shared by inbound completion
// reports and outbound bridge actions.
type bridgeEventPayload struct {
	BlockchainName  string `json:"blockchain_name"`
	BlockchainEvent struct {
		ConversionID string          `json:"conversion_id"`
		TxAmount     decimal.Decimal `json:"tx_amount"`
		TxOperation  string          `json:"tx_operation"`
	} `json:"blockchain_event"`
	BlockchainNetworkID string `json:"blockchain_network_id"`
}

// ParseBridgeCompletion decodes a bridge worker completion report.
func ParseBridgeCompletion(data []byte) (*services.ActivityEvent, error) {
	var payload bridgeEventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidPayload, "malformed bridge completion payload: %v", err)
	}
	if payload.BlockchainEvent.ConversionID == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidPayload, "bridge completion missing conversion id")
	}
	return &services.ActivityEvent{
		BlockchainName: models.BlockchainName(payload.BlockchainName),
		NetworkID:      payload.BlockchainNetworkID,
		ConversionID:   payload.BlockchainEvent.ConversionID,
		TxAmount:       payload.BlockchainEvent.TxAmount,
		TxOperation:    models.TxOperation(payload.BlockchainEvent.TxOperation),
	}, nil
}

// bridgeActionFromActivityEvent renders the outbound wire shape.
func bridgeActionFromActivityEvent(event *services.ActivityEvent) bridgeEventPayload {
	var payload bridgeEventPayload
	payload.BlockchainName = string(event.BlockchainName)
	payload.BlockchainNetworkID = event.NetworkID
	payload.BlockchainEvent.ConversionID = event.ConversionID
	payload.BlockchainEvent.TxAmount = event.TxAmount
	payload.BlockchainEvent.TxOperation = string(event.TxOperation)
	return payload
}
