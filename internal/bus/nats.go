package bus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectAlertRaised    = "metrics.alert.raised"
	SubjectTrendChanged   = "metrics.trend.changed"
	SubjectSampleRecorded = "metrics.sample.recorded"
)

// SampleEvent is the ingestion payload collaborator teams publish on
// metrics.sample.recorded.
type SampleEvent struct {
	EntityID string    `json:"entityId"`
	Metric   string    `json:"metric"`
	Value    float64   `json:"value"`
	TS       time.Time `json:"ts"`
}

type Publisher struct {
	Conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{Conn: conn}, nil
}

func (p *Publisher) Close() {
	if p.Conn != nil {
		p.Conn.Drain()
		p.Conn.Close()
	}
}

func (p *Publisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Conn.Publish(subject, data)
}

type Subscriber struct {
	Conn *nats.Conn
}

func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{Conn: conn}, nil
}

func (s *Subscriber) Close() {
	if s.Conn != nil {
		s.Conn.Drain()
		s.Conn.Close()
	}
}

// SubscribeSamples consumes sample events; malformed payloads are
// dropped.
func (s *Subscriber) SubscribeSamples(handler func(SampleEvent)) (*nats.Subscription, error) {
	return s.Conn.Subscribe(SubjectSampleRecorded, func(msg *nats.Msg) {
		var evt SampleEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return
		}
		handler(evt)
	})
}
