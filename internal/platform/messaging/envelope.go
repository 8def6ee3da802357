package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	contractsv1 "agora/contracts/gen/events/v1"
)

var ErrInvalidEnvelope = errors.New("invalid event envelope")

// DecodeEnvelope reads a broker record value. Only the fields the ledger
// needs are required; data is kept as raw JSON so payloads of any shape pass
// through untouched.
func DecodeEnvelope(raw []byte) (contractsv1.Envelope, error) {
	if !gjson.ValidBytes(raw) {
		return contractsv1.Envelope{}, fmt.Errorf("%w: not valid JSON", ErrInvalidEnvelope)
	}
	fields := gjson.GetManyBytes(raw,
		"event_id",
		"event_type",
		"tenant_id",
		"priority",
		"occurred_at",
		"source_service",
		"trace_id",
		"schema_version",
		"partition_key_path",
		"partition_key",
		"data",
	)
	envelope := contractsv1.Envelope{
		EventID:          fields[0].String(),
		EventType:        fields[1].String(),
		TenantID:         fields[2].String(),
		Priority:         int(fields[3].Int()),
		SourceService:    fields[5].String(),
		TraceID:          fields[6].String(),
		SchemaVersion:    int(fields[7].Int()),
		PartitionKeyPath: fields[8].String(),
		PartitionKey:     fields[9].String(),
	}
	if envelope.EventType == "" {
		return contractsv1.Envelope{}, fmt.Errorf("%w: event_type is required", ErrInvalidEnvelope)
	}
	if occurred := fields[4].String(); occurred != "" {
		parsed, err := time.Parse(time.RFC3339Nano, occurred)
		if err != nil {
			return contractsv1.Envelope{}, fmt.Errorf("%w: occurred_at: %v", ErrInvalidEnvelope, err)
		}
		envelope.OccurredAt = parsed.UTC()
	}
	if data := fields[10]; data.Exists() {
		envelope.Data = json.RawMessage(data.Raw)
	}
	return envelope, nil
}

func EncodeEnvelope(envelope contractsv1.Envelope) ([]byte, error) {
	return json.Marshal(envelope)
}
