package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/services"
)

func TestRun(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "device", "device", "server", "", services.ExtName, "Device name")
	f.bus.Respond(services.LicensingPeer, func(*bus.Message) (*bus.Message, error) {
		return bus.NewMessage("", "ERROR", "not ready"), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	mailbox := make(chan *bus.Message, 1)
	ng := make(chan *bus.Message, 1)
	done := make(chan error, 1)
	go func() { done <- f.agent.Run(ctx, Inputs{Mailbox: mailbox, NG: ng}) }()

	next := func() *bus.Message {
		var sent []*bus.Message
		require.Eventually(t, func() bool {
			sent = append(sent, f.bus.Sent()...)
			return len(sent) == 1
		}, 2*time.Second, 10*time.Millisecond)
		return sent[0]
	}

	mailbox <- request(SubjectEnameFromIname, "device")
	require.Equal(t, []string{"OK", "Device name"}, next().Strings())

	ng <- &bus.Message{Sender: "web", Subject: SubjectGet, Frames: bus.StringFrames("device")}
	rep := next()
	require.Equal(t, "OK", rep.Frame(0))
	require.Equal(t, "web", rep.Address)

	reqs := f.bus.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, services.SubjectLimitationQuery, reqs[0].Subject)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestRunStopsOnClosedMailbox(t *testing.T) {
	f := newFixture(t)
	mailbox := make(chan *bus.Message)
	close(mailbox)
	err := f.agent.Run(context.Background(), Inputs{Mailbox: mailbox})
	require.ErrorContains(t, err, "mailbox closed")
}

func TestHandleNG(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "rack-1", "rack", "", "", services.ExtName, "Rack 1")
	ctx := context.Background()

	f.agent.HandleNG(ctx, &bus.Message{Sender: "web", Subject: SubjectGet, Frames: bus.StringFrames("rack-1")})
	sent := f.bus.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "OK", sent[0].Frame(0))
	var doc struct {
		Iname string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(sent[0].Frames[1], &doc))
	require.Equal(t, "rack-1", doc.Iname)

	f.agent.HandleNG(ctx, &bus.Message{Sender: "web", Subject: SubjectGet, Frames: bus.StringFrames("ghost")})
	f.agent.HandleNG(ctx, &bus.Message{Sender: "web", Subject: SubjectGet})
	f.agent.HandleNG(ctx, &bus.Message{Sender: "web", Subject: "PUT", Frames: bus.StringFrames("rack-1")})
	sent = f.bus.Sent()
	require.Len(t, sent, 3)
	for _, m := range sent {
		require.Equal(t, "ERROR", m.Frame(0))
	}
	require.Equal(t, "Unsupported subject 'PUT'", sent[2].Frame(1))
}
