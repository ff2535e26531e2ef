// Package notify publishes ticket lifecycle events for the downstream
// email/PDF delivery consumers. Every publish is fire-and-forget: a
// broker failure is logged and swallowed, never surfaced to the flow
// that triggered it.
package notify

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
)

type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

type Notifier struct {
	Producer Publisher
	Logger   *logger.Logger
	Topics   config.TopicConfig
}

func NewNotifier(producer Publisher, log *logger.Logger, topics config.TopicConfig) *Notifier {
	return &Notifier{Producer: producer, Logger: log, Topics: topics}
}

func (n *Notifier) publish(topic, key string, payload interface{}) {
	if n.Producer == nil {
		return
	}
	value, err := json.Marshal(payload)
	if err != nil {
		n.Logger.Error("NOTIFY", fmt.Sprintf("marshal payload for %s: %v", topic, err))
		return
	}
	if err := n.Producer.Publish(topic, key, value); err != nil {
		n.Logger.Error("NOTIFY", fmt.Sprintf("publish to %s failed: %v", topic, err))
		return
	}
	n.Logger.LogKafka("PUBLISH", topic, key)
}

// TicketsIssued announces a completed issuance so the mailer can send
// the purchase/grant confirmation.
func (n *Notifier) TicketsIssued(orderID string, tickets []models.Ticket) {
	n.publish(n.Topics.TicketsIssued, orderID, map[string]interface{}{
		"order_id":  orderID,
		"tickets":   tickets,
		"issued_at": time.Now().UTC(),
	})
}

// TicketReady carries the configured ticket plus its rendered PDF for
// delivery to the attendee.
func (n *Notifier) TicketReady(ticket models.Ticket, pdf []byte) {
	n.publish(n.Topics.TicketReady, ticket.ID, map[string]interface{}{
		"ticket":     ticket,
		"pdf_base64": base64.StdEncoding.EncodeToString(pdf),
	})
}

// CheckinRecorded streams an audit transition for downstream dashboards.
func (n *Notifier) CheckinRecorded(entry models.TicketLog) {
	n.publish(n.Topics.CheckinEvents, entry.TicketID, entry)
}

// RecoveryInvite asks the mailer to invite a guest purchaser to create
// an account so their tickets can be linked.
func (n *Notifier) RecoveryInvite(email string) {
	n.publish(n.Topics.RecoveryInvites, email, map[string]interface{}{
		"email":      email,
		"invited_at": time.Now().UTC(),
	})
}
