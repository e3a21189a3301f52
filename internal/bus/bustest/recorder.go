// Package bustest provides an in-process bus.Bus that records traffic.
package bustest

import (
	"context"
	"fmt"
	"sync"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
)

// Responder answers a Request addressed to one peer.
type Responder func(req *bus.Message) (*bus.Message, error)

// Published is one stream entry.
type Published struct {
	Stream  string
	Subject string
	Frame   []byte
}

// Notification is one pub/sub payload.
type Notification struct {
	Channel string
	Payload []byte
}

// Recorder implements bus.Bus in memory.
type Recorder struct {
	name string

	mu         sync.Mutex
	sent       []*bus.Message
	published  []Published
	notified   []Notification
	responders map[string]Responder
	requests   []*bus.Message

	// PublishErr, when set, fails every Publish.
	PublishErr error
}

var _ bus.Bus = (*Recorder)(nil)

func NewRecorder(name string) *Recorder {
	return &Recorder{name: name, responders: map[string]Responder{}}
}

func (r *Recorder) Name() string { return r.name }

// Respond registers the responder used for requests addressed to peer.
func (r *Recorder) Respond(peer string, fn Responder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responders[peer] = fn
}

func (r *Recorder) Send(_ context.Context, to, subject, tracker string, frames ...[]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, &bus.Message{Sender: r.name, Address: to, Subject: subject, Tracker: tracker, Frames: frames})
	return nil
}

func (r *Recorder) Reply(ctx context.Context, req *bus.Message, subject string, frames ...[]byte) error {
	return r.Send(ctx, req.Sender, subject, req.Tracker, frames...)
}

func (r *Recorder) Request(_ context.Context, to, subject string, frames ...[]byte) (*bus.Message, error) {
	req := &bus.Message{Sender: r.name, Address: to, Subject: subject, Frames: frames}
	r.mu.Lock()
	r.requests = append(r.requests, req)
	fn, ok := r.responders[to]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", bus.ErrTimeout, to, subject)
	}
	return fn(req)
}

func (r *Recorder) Publish(_ context.Context, stream, subject string, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.PublishErr != nil {
		return r.PublishErr
	}
	r.published = append(r.published, Published{Stream: stream, Subject: subject, Frame: frame})
	return nil
}

func (r *Recorder) Notify(_ context.Context, channel string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, Notification{Channel: channel, Payload: payload})
	return nil
}

// Sent returns and clears the recorded mailbox messages.
func (r *Recorder) Sent() []*bus.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

// Published returns and clears the recorded stream entries.
func (r *Recorder) Published() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.published
	r.published = nil
	return out
}

// Notifications returns and clears the recorded pub/sub payloads.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notified
	r.notified = nil
	return out
}

// Requests returns and clears the recorded requests.
func (r *Recorder) Requests() []*bus.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.requests
	r.requests = nil
	return out
}

// Subjects lists the subjects of the given stream entries.
func Subjects(ps []Published) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Subject
	}
	return out
}
