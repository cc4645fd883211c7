package streaming

import (
	"context"
	"encoding/json"
	"log"
)

// LogPublisher logs dispatch payloads instead of publishing them. Used in
// dev mode and tests where no broker is attached.
type LogPublisher struct {
	logger *log.Logger
}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{
		logger: log.Default(),
	}
}

func (p *LogPublisher) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.logger.Printf("[STREAMING] PUBLISH %s: %s", channel, string(data))
	return nil
}

func (p *LogPublisher) Close() error {
	p.logger.Println("[STREAMING] Closed LogPublisher")
	return nil
}
