/**
 * @description
 * Email notification consumer. Terminal payment transitions are published to
 * RabbitMQ by the booking workflow; this package binds the status routing
 * keys to a durable queue and turns each message into a templated email.
 * Consuming is decoupled from the workflow on purpose: a slow or failing
 * mail relay can never delay a webhook acknowledgement.
 *
 * @dependencies
 * - encoding/json, log: Standard Go libraries.
 * - internal/domain: For the event payload shape.
 * - pkg/mailer, pkg/rabbitmq: For email sending and queue consumption.
 */

package notifier

import (
	"encoding/json"
	"log"

	"github.com/soulsadhna/booking-service/internal/domain"
	"github.com/soulsadhna/booking-service/pkg/mailer"
	"github.com/soulsadhna/booking-service/pkg/rabbitmq"
)

// Notifier consumes payment lifecycle events and sends email.
type Notifier struct {
	mailer mailer.Mailer
}

// New creates a Notifier.
func New(m mailer.Mailer) *Notifier {
	return &Notifier{mailer: m}
}

// Start binds the payment status routing keys on the exchange and begins
// consuming. It returns after the consumer goroutine is running.
func (n *Notifier) Start(consumer *rabbitmq.Consumer, exchange, queueName string) error {
	return consumer.ConsumeWithBindings(exchange, queueName, map[string]func([]byte) bool{
		"payment.status.success": n.handlePaymentSuccess,
		"payment.status.failed":  n.handlePaymentFailed,
	})
}

func (n *Notifier) decode(body []byte) (*domain.TerminalPaymentEvent, bool) {
	var evt domain.TerminalPaymentEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		log.Printf("level=warn component=notifier msg=\"undecodable event; dropping\" err=%v", err)
		return nil, false
	}
	if evt.UserEmail == "" {
		// Nothing to address the mail to; dropping beats requeue-looping.
		log.Printf("level=warn component=notifier msg=\"event missing user email; dropping\" order_id=%s", evt.OrderID)
		return nil, false
	}
	return &evt, true
}

func (n *Notifier) handlePaymentSuccess(body []byte) bool {
	evt, ok := n.decode(body)
	if !ok {
		return true
	}

	err := n.mailer.SendTemplated(evt.UserEmail, "bookingConfirmed", map[string]string{
		"userName":   evt.UserName,
		"eventTitle": evt.EventTitle,
		"meetLink":   evt.MeetLink,
	})
	if err != nil {
		// Requeue so a transient relay outage does not eat the confirmation.
		return false
	}
	return true
}

func (n *Notifier) handlePaymentFailed(body []byte) bool {
	evt, ok := n.decode(body)
	if !ok {
		return true
	}

	err := n.mailer.SendTemplated(evt.UserEmail, "paymentFailed", map[string]string{
		"userName":   evt.UserName,
		"eventTitle": evt.EventTitle,
	})
	if err != nil {
		return false
	}
	return true
}
