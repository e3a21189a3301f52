package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/services"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
)

// TOPOLOGY commands.
const (
	TopologyPower           = "POWER"
	TopologyPowerTo         = "POWER_TO"
	TopologyPowerchains     = "POWERCHAINS"
	TopologyInputPowerchain = "INPUT_POWERCHAIN"
	TopologyLocation        = "LOCATION"

	msgTypeRequest = "REQUEST"
	msgTypeReply   = "REPLY"
)

// handleTopology serves "REQUEST <uuid> <command> [args...]". The reply
// echoes "<uuid> REPLY <command>" followed by the command result.
func (a *Agent) handleTopology(ctx context.Context, m *bus.Message) {
	msgType, ok := m.Pop()
	if !ok {
		a.log.Error("topology request without message type", zap.String("sender", m.Sender))
		return
	}
	uuid, ok := m.Pop()
	if !ok {
		a.log.Error("topology request without uuid", zap.String("sender", m.Sender))
		return
	}
	command, ok := m.Pop()
	if !ok {
		a.log.Error("topology request without command", zap.String("sender", m.Sender))
		return
	}

	out := []string{uuid, msgTypeReply, command}
	switch {
	case msgType != msgTypeRequest:
		out = append(out, statusError, fmt.Sprintf("%s (msg type: %s)", appErr.WireRequestMsgtypeExpected, msgType))
	case command == TopologyPower:
		name, _ := m.Pop()
		out = append(out, a.topologyResult(name, func() (any, error) {
			names, err := a.topology.Power(ctx, name)
			if err != nil {
				return nil, err
			}
			return names, nil
		}, true)...)
	case command == TopologyPowerTo:
		name, _ := m.Pop()
		out = append(out, a.topologyResult(name, func() (any, error) {
			return a.topology.PowerTo(ctx, name)
		}, false)...)
	case command == TopologyPowerchains:
		sel, _ := m.Pop()
		name, _ := m.Pop()
		out = append(out, a.topologyResult(name, func() (any, error) {
			return a.topology.Powerchains(ctx, sel, name)
		}, false)...)
	case command == TopologyInputPowerchain:
		name, _ := m.Pop()
		out = append(out, a.topologyResult(name, func() (any, error) {
			return a.topology.InputPowerchain(ctx, name)
		}, false)...)
	case command == TopologyLocation:
		sel, _ := m.Pop()
		name, _ := m.Pop()
		options, _ := m.Pop()
		out = append(out, a.topologyResult(name, func() (any, error) {
			switch sel {
			case services.SelectTo:
				return a.topology.LocationTo(ctx, name)
			case services.SelectFrom:
				opts, err := services.ParseLocationOptions(options)
				if err != nil {
					return nil, err
				}
				return a.topology.LocationFrom(ctx, name, opts)
			default:
				return nil, appErr.BadParams("select", sel, "to or from")
			}
		}, false)...)
	default:
		out = append(out, statusError, fmt.Sprintf("%s (command: %s)", appErr.WireUnexpectedCommand, command))
	}
	a.reply(ctx, m, SubjectTopology, out...)
}

// topologyResult runs fn for the asset name and renders
// "<name> OK <payload...>" or "<name> ERROR <reason>". A list result is
// spread over frames when spread is set, otherwise it is sent as JSON.
func (a *Agent) topologyResult(name string, fn func() (any, error), spread bool) []string {
	if name == "" {
		return []string{name, statusError, "Missing argument"}
	}
	res, err := fn()
	if err != nil {
		a.log.Info("topology request failed", zap.String("asset", name), zap.Error(err))
		return []string{name, statusError, services.TopologyReason(err)}
	}
	if names, ok := res.([]string); ok && spread {
		return append([]string{name, statusOK}, names...)
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return []string{name, statusError, services.TopologyReason(err)}
	}
	return []string{name, statusOK, string(raw)}
}
