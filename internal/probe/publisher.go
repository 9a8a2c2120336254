package probe

import (
	"FlowForge/internal/config"
	"FlowForge/internal/model"
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"
)

// Publisher pushes progress events and sampled flows to NATS subjects as
// JSON, for external dashboards or downstream collectors. The run makes
// identical forward progress whether or not anyone subscribes.
type Publisher struct {
	nc              *nats.Conn
	progressSubject string
	flowSubject     string
}

// NewPublisher connects to the configured NATS server.
func NewPublisher(cfg config.PublishConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{
		nc:              nc,
		progressSubject: cfg.ProgressSubject,
		flowSubject:     cfg.FlowSubject,
	}, nil
}

// PublishProgress sends one progress event. Publish errors are returned but
// never abort the run; the caller logs and moves on.
func (p *Publisher) PublishProgress(ev model.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.progressSubject, data)
}

// WriteRaw is a no-op; only exported flows are published.
func (p *Publisher) WriteRaw(rec *model.FlowRecord) error { return nil }

// WriteSampled publishes a sampled flow record.
func (p *Publisher) WriteSampled(rec *model.FlowRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.flowSubject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
	return nil
}
