// Package agent runs the asset-agent actor: the mailbox protocol, the ng
// request queue and the consumers of the ASSETS and LICENSING streams.
package agent

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/services"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Mailbox subjects.
const (
	SubjectTopology          = "TOPOLOGY"
	SubjectManipulation      = "ASSET_MANIPULATION"
	SubjectAssetsInContainer = "ASSETS_IN_CONTAINER"
	SubjectAssets            = "ASSETS"
	SubjectEnameFromIname    = "ENAME_FROM_INAME"
	SubjectRepublish         = "REPUBLISH"
	SubjectAssetDetail       = "ASSET_DETAIL"
	SubjectGet               = "GET"
)

const (
	statusOK     = "OK"
	statusError  = "ERROR"
	cmdGet       = "GET"
	republishAll = "$all"
)

// Inputs feed the actor loop. Nil channels are never selected.
type Inputs struct {
	Mailbox   <-chan *bus.Message
	NG        <-chan *bus.Message
	Assets    <-chan *bus.Message
	Licensing <-chan *bus.Message
}

// Deps wires the agent to its collaborators.
type Deps struct {
	Bus          bus.Bus
	Repo         repository.AssetRepository
	Service      services.AssetService
	Topology     *services.Topology
	Events       *services.EventPublisher
	Licensing    *services.Licensing
	ReplyTimeout time.Duration
}

// Agent serves one message at a time, so handlers never run concurrently.
type Agent struct {
	bus       bus.Bus
	repo      repository.AssetRepository
	svc       services.AssetService
	topology  *services.Topology
	events    *services.EventPublisher
	licensing *services.Licensing
	timeout   time.Duration
	log       *zap.Logger
}

func New(d Deps) *Agent {
	if d.ReplyTimeout <= 0 {
		d.ReplyTimeout = 5 * time.Second
	}
	return &Agent{
		bus:       d.Bus,
		repo:      d.Repo,
		svc:       d.Service,
		topology:  d.Topology,
		events:    d.Events,
		licensing: d.Licensing,
		timeout:   d.ReplyTimeout,
		log:       logger.Named("agent"),
	}
}

// Run queries the licensing limits then serves in until ctx is done.
func (a *Agent) Run(ctx context.Context, in Inputs) error {
	qctx, cancel := context.WithTimeout(ctx, a.timeout)
	if err := a.licensing.Query(qctx, a.bus); err != nil {
		a.log.Warn("licensing limits not queried, keeping defaults", zap.Error(err))
	}
	cancel()

	a.log.Info("agent started", zap.String("name", a.bus.Name()))
	for {
		select {
		case <-ctx.Done():
			a.log.Info("agent stopped")
			return nil
		case m, ok := <-in.Mailbox:
			if !ok {
				return closed(ctx, "mailbox")
			}
			a.HandleMailbox(ctx, m)
		case m, ok := <-in.NG:
			if !ok {
				return closed(ctx, "ng queue")
			}
			a.HandleNG(ctx, m)
		case m, ok := <-in.Assets:
			if !ok {
				return closed(ctx, "assets stream")
			}
			a.HandleStream(ctx, m)
		case m, ok := <-in.Licensing:
			if !ok {
				return closed(ctx, "licensing stream")
			}
			a.HandleStream(ctx, m)
		}
	}
}

func closed(ctx context.Context, what string) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("agent: %s closed", what)
}

// HandleMailbox dispatches one mailbox request on its subject.
func (a *Agent) HandleMailbox(ctx context.Context, m *bus.Message) {
	a.log.Debug("mailbox deliver", zap.String("sender", m.Sender), zap.String("subject", m.Subject))
	switch m.Subject {
	case SubjectTopology:
		a.handleTopology(ctx, m)
	case SubjectManipulation:
		a.handleManipulation(ctx, m)
	case SubjectAssetsInContainer:
		a.handleAssetsInContainer(ctx, m)
	case SubjectAssets:
		a.handleAssets(ctx, m)
	case SubjectEnameFromIname:
		a.handleEname(ctx, m)
	case SubjectRepublish:
		a.handleRepublish(ctx, m)
	case SubjectAssetDetail:
		a.handleAssetDetail(ctx, m)
	default:
		a.log.Info("unexpected mailbox subject", zap.String("subject", m.Subject), zap.String("sender", m.Sender))
	}
}

func (a *Agent) reply(ctx context.Context, req *bus.Message, subject string, frames ...string) {
	a.replyFrames(ctx, req, subject, bus.StringFrames(frames...)...)
}

func (a *Agent) replyFrames(ctx context.Context, req *bus.Message, subject string, frames ...[]byte) {
	rctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.bus.Reply(rctx, req, subject, frames...); err != nil {
		a.log.Error("reply failed",
			zap.String("subject", subject),
			zap.String("to", req.Sender),
			zap.Error(err))
	}
}
