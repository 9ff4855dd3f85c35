// Package livefeed maintains the websocket subscription to the community
// live-feed service and decodes its embed and ban frames.
package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/you/streamwall/internal/core"
)

// Config configures the feed subscription.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://live.example.org/feed.
	URL string
	// MaxBackoff caps the reconnect delay; defaults to one minute.
	MaxBackoff time.Duration
}

// Handlers receives decoded frames. Either callback may be nil.
type Handlers struct {
	// OnEmbeds receives the full replacement embed list from an embeds
	// frame. An empty list is a valid update.
	OnEmbeds func([]core.LiveEmbed)
	// OnBanned receives the replacement banned list. A frame carrying
	// null is delivered as nil, meaning "clear".
	OnBanned func([]core.BannedEmbed)
}

// Client keeps the feed connection alive across failures.
type Client struct {
	cfg    Config
	handle Handlers
}

// New creates a feed client. Run must be called to start it.
func New(cfg Config, h Handlers) *Client {
	return &Client{cfg: cfg, handle: h}
}

// Run dials the feed and processes frames until ctx is cancelled,
// reconnecting with capped exponential backoff on any failure.
func (c *Client) Run(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.URL) == "" {
		return errors.New("livefeed: url is required")
	}
	maxBackoff := c.cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = time.Minute
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		start := time.Now()
		err := c.runOnce(ctx)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ctx.Err()
		}

		// A connection that survived a while earns a fresh backoff.
		if time.Since(start) > maxBackoff {
			backoff = time.Second
		}

		log.Printf("livefeed: disconnected: %v; reconnecting in %s", err, backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(8 << 20)

	log.Printf("livefeed: connected to %s", c.cfg.URL)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.MessageText {
			continue
		}
		if err := c.dispatch(data); err != nil {
			log.Printf("livefeed: dropping frame: %v", err)
		}
	}
}

func (c *Client) dispatch(data []byte) error {
	frame, err := parseFrame(data)
	if err != nil {
		return err
	}
	switch frame.Type {
	case frameEmbeds:
		if c.handle.OnEmbeds != nil {
			c.handle.OnEmbeds(frame.Embeds)
		}
	case frameBanned:
		if c.handle.OnBanned != nil {
			c.handle.OnBanned(frame.Banned)
		}
	default:
		// Unknown frame types are ignored so the feed can grow.
	}
	return nil
}

const (
	frameEmbeds = "embeds"
	frameBanned = "banned"
)

type frame struct {
	Type   string             `json:"type"`
	Embeds []core.LiveEmbed   `json:"embeds"`
	Banned []core.BannedEmbed `json:"banned"`
}

// parseFrame decodes one feed frame. Embeds frames with a null list decode
// to an empty slice so "no one is live" replaces rather than no-ops.
func parseFrame(data []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return frame{}, errors.New("frame missing type")
	}
	if f.Type == frameEmbeds && f.Embeds == nil {
		f.Embeds = []core.LiveEmbed{}
	}
	return f, nil
}
