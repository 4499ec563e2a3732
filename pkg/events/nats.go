// Package events publishes fire-and-forget ingestion lifecycle events to
// an optional message broker. A publisher failure never gates a load's
// own outcome; the pipeline is fully functional with no broker configured.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/gowthamrao/eurostat-elt/pkg/log"
	"github.com/gowthamrao/eurostat-elt/pkg/model"
	"github.com/nats-io/nats.go"
)

// Publisher publishes one JSON-encoded IngestionHistory per outcome to a
// subject scoped by dataset id.
type Publisher struct {
	conn *nats.Conn
}

// Connect dials url and wraps the connection in a Publisher. A caller
// that does not configure a broker should simply not call Connect and
// pass a nil *Publisher — PublishOutcome on a nil Publisher is a no-op.
func Connect(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("events: nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("events: nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &Publisher{conn: conn}, nil
}

// Close flushes and closes the underlying connection. Safe to call on nil.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}

// PublishOutcome encodes record as JSON and publishes it to
// "eurostat.ingestion.<dataset_id>". Failures are logged, never returned:
// this is an observability side channel, not part of the load's contract.
func (p *Publisher) PublishOutcome(record *model.IngestionHistory) {
	if p == nil || p.conn == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		log.Warnf("events: marshal ingestion history for %s: %v", record.DatasetID, err)
		return
	}
	subject := fmt.Sprintf("eurostat.ingestion.%s", record.DatasetID)
	if err := p.conn.Publish(subject, payload); err != nil {
		log.Warnf("events: publish to %s: %v", subject, err)
	}
}
