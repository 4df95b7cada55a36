package payment

import "time"

// SettlementEvent defines a Kafka message produced from a verified gateway notification
type SettlementEvent struct {
	ChargeRef     string       `json:"charge_ref"`
	Status        ChargeStatus `json:"status"`
	Amount        int64        `json:"amount"`
	CorrelationID string       `json:"correlation_id"`
	ReceivedAt    time.Time    `json:"received_at"`
}
