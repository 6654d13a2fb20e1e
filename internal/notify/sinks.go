package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Chime rings the terminal bell of the desk machine.
type Chime struct {
	mu sync.Mutex
	w  io.Writer
}

func NewChime(w io.Writer) *Chime {
	return &Chime{w: w}
}

func (c *Chime) Name() string { return "chime" }

func (c *Chime) Deliver(_ context.Context, _ Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.w, "\a"); err != nil {
		return fmt.Errorf("ring bell: %w", err)
	}
	return nil
}

// Broadcaster posts text to the staff's chat platform.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) error
}

type PlatformSink struct {
	bot Broadcaster
}

func NewPlatformSink(bot Broadcaster) *PlatformSink {
	return &PlatformSink{bot: bot}
}

func (s *PlatformSink) Name() string { return "telegram" }

func (s *PlatformSink) Deliver(ctx context.Context, e Event) error {
	return s.bot.Broadcast(ctx, e.Message)
}

// Publisher pushes raw messages onto a broker.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// StreamSink publishes every event as JSON for downstream consumers.
type StreamSink struct {
	pub Publisher
}

func NewStreamSink(pub Publisher) *StreamSink {
	return &StreamSink{pub: pub}
}

func (s *StreamSink) Name() string { return "rabbitmq" }

func (s *StreamSink) Deliver(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.pub.Publish(ctx, body)
}
