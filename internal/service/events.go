package service

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// EvaluationEvent announces a completed pipeline evaluation on the message
// bus. Consumers use it for gradebook sync and live dashboards.
type EvaluationEvent struct {
	BlockID      uint      `json:"block_id"`
	StudentID    uint      `json:"student_id"`
	AttemptCount int       `json:"attempt_count"`
	Code         int       `json:"code"`
	Score        *float64  `json:"score"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

// EventPublisher publishes evaluation events over NATS. A nil connection
// disables publishing; evaluation never fails because the bus is down.
type EventPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewEventPublisher constructs the publisher. Subject defaults to
// "gradeflow.evaluations".
func NewEventPublisher(conn *nats.Conn, subject string, logger zerolog.Logger) *EventPublisher {
	if subject == "" {
		subject = "gradeflow.evaluations"
	}
	return &EventPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "event_publisher").Logger(),
	}
}

// PublishEvaluation fires the event best-effort.
func (p *EventPublisher) PublishEvaluation(event EvaluationEvent) {
	if p == nil || p.conn == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal evaluation event")
		return
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.logger.Warn().Err(err).Str("subject", p.subject).Msg("failed to publish evaluation event")
	}
}
