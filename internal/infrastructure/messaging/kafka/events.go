package kafka

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/pkg/errors"
)

const (
	TopicDocumentIngested = "nfe.document.ingested"

	EventDocumentIngested = "document.ingested"
	eventSource           = "nfeingest"
	schemaVersion         = "v1"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// DocumentIngestedPayload is the body of a document.ingested event.
type DocumentIngestedPayload struct {
	RunID          string    `json:"run_id"`
	Fingerprint    string    `json:"fingerprint"`
	QueriedCNPJ    string    `json:"queried_cnpj"`
	QueryDate      string    `json:"query_date"`
	EmitterCNPJ    string    `json:"emitter_cnpj"`
	DocumentNumber string    `json:"document_number,omitempty"`
	IssuedOn       string    `json:"issued_on,omitempty"`
	Path           string    `json:"path"`
	SizeBytes      int       `json:"size_bytes"`
	IngestedAt     time.Time `json:"ingested_at"`
}

func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        eventSource,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) ToMessage(topic string, key []byte) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to marshal envelope")
	}
	return &ProducerMessage{
		Topic: topic,
		Key:   key,
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

func payloadFor(doc invoice.IngestedDocument) DocumentIngestedPayload {
	p := DocumentIngestedPayload{
		RunID:       doc.RunID,
		Fingerprint: doc.Key.String(),
		QueriedCNPJ: doc.Window.TaxpayerID.String(),
		QueryDate:   doc.Window.Day(),
		Path:        filepath.ToSlash(doc.RelativePath),
		IngestedAt:  doc.IngestedAt.UTC(),
	}
	if d := doc.Document; d != nil {
		p.EmitterCNPJ = d.EmitterID
		p.DocumentNumber = d.DocumentNumber
		p.IssuedOn = d.IssuedOn
		p.SizeBytes = len(d.Content)
	}
	return p
}

// Publisher emits one document.ingested event per new document, keyed by
// fingerprint so replays of the same document land on the same partition.
type Publisher struct {
	producer *Producer
	topic    string
	log      logging.Logger
}

func NewPublisher(producer *Producer, topic string, log logging.Logger) *Publisher {
	if topic == "" {
		topic = TopicDocumentIngested
	}
	return &Publisher{producer: producer, topic: topic, log: logging.OrDefault(log).Named("sink.kafka")}
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Deliver(ctx context.Context, doc invoice.IngestedDocument) error {
	env, err := NewEventEnvelope(EventDocumentIngested, payloadFor(doc))
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(p.topic, []byte(doc.Key.String()))
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
