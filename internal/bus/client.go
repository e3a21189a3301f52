package bus

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

// Stream and mailbox names used by the asset service.
const (
	StreamAssets    = "ASSETS"
	StreamLicensing = "LICENSING-ANNOUNCEMENTS"

	streamPrefix  = "fty:stream:"
	mailboxPrefix = "fty:mailbox:"
	streamField   = "msg"
	streamMaxLen  = 10000
	pollInterval  = time.Second
)

// ErrTimeout is returned by Request when no reply arrives in time.
var ErrTimeout = errors.New("bus: request timed out")

// Bus is the subset of the transport the actors depend on.
type Bus interface {
	Name() string
	Send(ctx context.Context, to, subject, tracker string, frames ...[]byte) error
	Reply(ctx context.Context, req *Message, subject string, frames ...[]byte) error
	Request(ctx context.Context, to, subject string, frames ...[]byte) (*Message, error)
	Publish(ctx context.Context, stream, subject string, frame []byte) error
	Notify(ctx context.Context, channel string, payload []byte) error
}

// Client is one named endpoint on the bus. It owns the goroutines feeding
// its mailbox and stream channels; Close stops them.
type Client struct {
	rdb     redis.UniversalClient
	name    string
	timeout time.Duration
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Bus = (*Client)(nil)

// Connect checks the broker and returns a client addressed as name.
func Connect(ctx context.Context, rdb redis.UniversalClient, name string, timeout time.Duration) (*Client, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bus connect %s: %w", name, err)
	}
	cctx, cancel := context.WithCancel(context.Background())
	return &Client{
		rdb:     rdb,
		name:    name,
		timeout: timeout,
		log:     logger.Named(name),
		ctx:     cctx,
		cancel:  cancel,
	}, nil
}

func (c *Client) Name() string { return c.name }

// Close stops every receiver started by this client and waits for them.
func (c *Client) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

// Send pushes a message into the mailbox of to.
func (c *Client) Send(ctx context.Context, to, subject, tracker string, frames ...[]byte) error {
	return c.send(ctx, &Message{Sender: c.name, Address: to, Subject: subject, Tracker: tracker, Frames: frames})
}

func (c *Client) send(ctx context.Context, m *Message) error {
	raw, err := Marshal(m)
	if err != nil {
		return fmt.Errorf("bus encode: %w", err)
	}
	if err := c.rdb.RPush(ctx, mailboxPrefix+m.Address, raw).Err(); err != nil {
		return fmt.Errorf("bus send to %s: %w", m.Address, err)
	}
	return nil
}

// Reply answers req, keeping its tracker.
func (c *Client) Reply(ctx context.Context, req *Message, subject string, frames ...[]byte) error {
	return c.Send(ctx, req.Sender, subject, req.Tracker, frames...)
}

// Request sends a message and waits for the matching reply on a private
// mailbox, at most the configured timeout.
func (c *Client) Request(ctx context.Context, to, subject string, frames ...[]byte) (*Message, error) {
	inbox := c.name + "." + uuid.NewString()
	tracker := uuid.NewString()
	defer c.rdb.Del(context.Background(), mailboxPrefix+inbox)

	if err := c.send(ctx, &Message{Sender: inbox, Address: to, Subject: subject, Tracker: tracker, Frames: frames}); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return nil, fmt.Errorf("%w: %s %s", ErrTimeout, to, subject)
		}
		res, err := c.rdb.BLPop(ctx, left, mailboxPrefix+inbox).Result()
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s %s", ErrTimeout, to, subject)
		}
		if err != nil {
			return nil, fmt.Errorf("bus request %s: %w", to, err)
		}
		m, err := Unmarshal([]byte(res[1]))
		if err != nil {
			c.log.Warn("dropping undecodable reply", zap.Error(err))
			continue
		}
		if m.Tracker != tracker {
			c.log.Debug("dropping stale reply", zap.String("tracker", m.Tracker))
			continue
		}
		return m, nil
	}
}

// Publish appends one frame to a stream under subject.
func (c *Client) Publish(ctx context.Context, stream, subject string, frame []byte) error {
	raw, err := Marshal(&Message{Sender: c.name, Address: stream, Subject: subject, Frames: [][]byte{frame}})
	if err != nil {
		return fmt.Errorf("bus encode: %w", err)
	}
	err = c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamPrefix + stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{streamField: raw},
	}).Err()
	if err != nil {
		return fmt.Errorf("bus publish %s: %w", stream, err)
	}
	return nil
}

// Notify publishes payload on a pub/sub channel.
func (c *Client) Notify(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("bus notify %s: %w", channel, err)
	}
	return nil
}

// Mailbox starts receiving the client's own mailbox.
func (c *Client) Mailbox() <-chan *Message {
	return c.MailboxOf(c.name)
}

// MailboxOf starts receiving the mailbox called name; used for secondary
// addresses served by the same actor.
func (c *Client) MailboxOf(name string) <-chan *Message {
	out := make(chan *Message)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(out)
		key := mailboxPrefix + name
		for {
			res, err := c.rdb.BLPop(c.ctx, pollInterval, key).Result()
			if c.ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				c.log.Error("mailbox receive failed", zap.String("mailbox", name), zap.Error(err))
				if !c.sleep(pollInterval) {
					return
				}
				continue
			}
			m, err := Unmarshal([]byte(res[1]))
			if err != nil {
				c.log.Warn("dropping undecodable mailbox message", zap.Error(err))
				continue
			}
			m.Address = name
			select {
			case out <- m:
			case <-c.ctx.Done():
				return
			}
		}
	}()
	return out
}

// Subscribe starts consuming stream from its current end, delivering only
// messages whose subject matches pattern.
func (c *Client) Subscribe(ctx context.Context, stream, pattern string) (<-chan *Message, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("bus subscribe %s: %w", stream, err)
	}
	key := streamPrefix + stream

	last := "0-0"
	tail, err := c.rdb.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("bus subscribe %s: %w", stream, err)
	}
	if len(tail) == 1 {
		last = tail[0].ID
	}

	out := make(chan *Message)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(out)
		for {
			res, err := c.rdb.XRead(c.ctx, &redis.XReadArgs{
				Streams: []string{key, last},
				Count:   64,
				Block:   pollInterval,
			}).Result()
			if c.ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				c.log.Error("stream receive failed", zap.String("stream", stream), zap.Error(err))
				if !c.sleep(pollInterval) {
					return
				}
				continue
			}
			for _, s := range res {
				for _, entry := range s.Messages {
					last = entry.ID
					m, ok := decodeEntry(entry)
					if !ok {
						c.log.Warn("dropping undecodable stream entry", zap.String("stream", stream), zap.String("id", entry.ID))
						continue
					}
					if !re.MatchString(m.Subject) {
						continue
					}
					select {
					case out <- m:
					case <-c.ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

func decodeEntry(entry redis.XMessage) (*Message, bool) {
	raw, ok := entry.Values[streamField].(string)
	if !ok {
		return nil, false
	}
	m, err := Unmarshal([]byte(raw))
	if err != nil {
		return nil, false
	}
	return m, true
}

func (c *Client) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}
