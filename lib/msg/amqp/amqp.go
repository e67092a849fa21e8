// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"log"

	"github.com/streadway/amqp"

	"github.com/tarancss/drb/lib/msg"
)

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New instantiates a new amqp broker.
func New(uri string) (msg.MsgBroker, error) {
	r := Amqp{}
	var err error

	if r.conn, err = amqp.Dial(uri); err != nil {
		return &r, err
	}
	r.ch = nil
	log.Printf("Connected to %s", uri)

	return &r, err
}

// Setup obtains an amqp channel and declares the message broker exchange:
//
// - re ("relay events"): the relay publishes deposit and settlement events to this exchange
func (r *Amqp) Setup(x interface{}) error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()
	// declare exchange
	return channel.ExchangeDeclare("re", "topic", true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			log.Printf("Error closing amqp.Channel:%e", err)
		}
		r.ch = nil
		log.Printf("amqp.Channel closed!")
	}
	return r.conn.Close()
}

// SendDeposit publishes a deposit event to the "re" exchange
func (r *Amqp) SendDeposit(e msg.DepositEvent) error {
	return r.publish(e.Net+".deposit."+e.DepositAddress, e)
}

// SendSettlement publishes a settlement event to the "re" exchange
func (r *Amqp) SendSettlement(e msg.SettlementEvent) error {
	return r.publish(e.Net+".settlement."+e.DepositAddress, e)
}

func (r *Amqp) publish(key string, payload interface{}) (err error) {
	// marshal to JSON
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(payload); err != nil {
		return
	}
	// obtain channel if not present
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return
		}
	}
	// build body
	m := amqp.Publishing{
		Headers:     amqp.Table{"x-relay-event": key},
		Body:        jsonDoc,
		ContentType: "application/json",
	}
	// publish
	if err = r.ch.Publish("re", key, false, false, m); err != nil {
		log.Printf("Error sending relay event to message broker %e", err)
	}
	return
}
