package services

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

// Licensing metric names announced for the local rack controller.
const (
	LicensingAsset           = "rackcontroller-0"
	MetricConfigurability    = "configurability.global"
	MetricMaxActive          = "power_nodes.max_active"
	LicensingPeer            = "etn-licensing"
	SubjectLimitationQuery   = "LIMITATION_QUERY"
	UnlimitedActive          = -1
	defaultConfigurability   = 1
	licensingReplyOK         = "OK"
	licensingReplyFirstFrame = "REPLY"
)

// Licensing holds the last announced licensing limits. It starts permissive.
type Licensing struct {
	configurability atomic.Int64
	maxActive       atomic.Int64
}

func NewLicensing() *Licensing {
	l := &Licensing{}
	l.configurability.Store(defaultConfigurability)
	l.maxActive.Store(UnlimitedActive)
	return l
}

// Configurable reports whether asset manipulation is allowed.
func (l *Licensing) Configurable() bool { return l.configurability.Load() != 0 }

// MaxActive is the maximum number of active power devices, -1 for no limit.
func (l *Licensing) MaxActive() int { return int(l.maxActive.Load()) }

func (l *Licensing) SetConfigurability(v int) { l.configurability.Store(int64(v)) }
func (l *Licensing) SetMaxActive(v int)       { l.maxActive.Store(int64(v)) }

// Apply updates the limits from one licensing metric. It reports whether the
// metric was a licensing limit.
func (l *Licensing) Apply(m *ftyproto.Message) bool {
	if m == nil || m.ID != ftyproto.MetricID || m.Name != LicensingAsset {
		return false
	}
	v, err := strconv.ParseFloat(m.Value, 64)
	if err != nil {
		logger.L().Warn("ignoring licensing metric", zap.String("type", m.Type), zap.String("value", m.Value))
		return false
	}
	switch m.Type {
	case MetricConfigurability:
		l.SetConfigurability(int(v))
	case MetricMaxActive:
		l.SetMaxActive(int(v))
	default:
		return false
	}
	logger.L().Info("licensing limit updated", zap.String("type", m.Type), zap.String("value", m.Value))
	return true
}

// Query asks the licensing service for the current limits. Each frame
// after REPLY, OK carries one encoded metric.
func (l *Licensing) Query(ctx context.Context, b bus.Bus) error {
	rep, err := b.Request(ctx, LicensingPeer, SubjectLimitationQuery, bus.StringFrames(uuid.NewString(), "*", "*")...)
	if err != nil {
		return err
	}
	frames := rep.Frames
	if rep.Frame(0) == licensingReplyFirstFrame {
		frames = frames[1:]
	}
	if len(frames) == 0 || string(frames[0]) != licensingReplyOK {
		logger.L().Warn("licensing query refused", zap.Strings("reply", rep.Strings()))
		return nil
	}
	for _, f := range frames[1:] {
		m, err := ftyproto.Decode(f)
		if err != nil {
			logger.L().Warn("skipping undecodable licensing metric", zap.Error(err))
			continue
		}
		l.Apply(m)
	}
	return nil
}

// Follow applies the metrics of the licensing stream until ctx is done. It
// fails when the stream closes first.
func (l *Licensing) Follow(ctx context.Context, stream <-chan *bus.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-stream:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("licensing: stream closed")
			}
			if m.Len() == 0 || !ftyproto.IsFtyProto(m.Frames[0]) {
				continue
			}
			msg, err := ftyproto.Decode(m.Frames[0])
			if err != nil {
				logger.L().Warn("skipping undecodable licensing metric", zap.String("subject", m.Subject), zap.Error(err))
				continue
			}
			l.Apply(msg)
		}
	}
}
