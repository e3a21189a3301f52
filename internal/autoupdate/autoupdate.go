// Package autoupdate periodically announces the network identity of the
// local rack controller as inventory on the ASSETS stream.
package autoupdate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

const (
	SubjectWakeup  = "WAKEUP"
	rackController = "rackcontroller"
	auxStatus      = "status"
)

// Interface is one local network interface.
type Interface struct {
	Name string
	MAC  string
	IPs  []string
}

// Updater is the asset-autoupdate actor.
type Updater struct {
	bus        bus.Bus
	agent      string
	timeout    time.Duration
	interfaces func() ([]Interface, error)
	hostname   func() (string, error)
	lookupAddr func(ctx context.Context, addr string) ([]string, error)
	log        *zap.Logger
}

type Option func(*Updater)

// WithInterfaces replaces the local interface enumeration.
func WithInterfaces(fn func() ([]Interface, error)) Option {
	return func(u *Updater) { u.interfaces = fn }
}

// WithHostname replaces os.Hostname.
func WithHostname(fn func() (string, error)) Option {
	return func(u *Updater) { u.hostname = fn }
}

// WithLookupAddr replaces the reverse DNS lookup.
func WithLookupAddr(fn func(ctx context.Context, addr string) ([]string, error)) Option {
	return func(u *Updater) { u.lookupAddr = fn }
}

func New(b bus.Bus, agentName string, timeout time.Duration, opts ...Option) *Updater {
	u := &Updater{
		bus:        b,
		agent:      agentName,
		timeout:    timeout,
		interfaces: LocalInterfaces,
		hostname:   os.Hostname,
		lookupAddr: net.DefaultResolver.LookupAddr,
		log:        logger.Named("autoupdate"),
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Run wakes up at start, every period and on each WAKEUP mailbox message.
func (u *Updater) Run(ctx context.Context, period time.Duration, mailbox <-chan *bus.Message) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	u.log.Info("autoupdate started", zap.Duration("period", period))
	u.wakeup(ctx)
	for {
		select {
		case <-ctx.Done():
			u.log.Info("autoupdate stopped")
			return nil
		case <-ticker.C:
			u.wakeup(ctx)
		case m, ok := <-mailbox:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("autoupdate: mailbox closed")
			}
			if m.Subject != SubjectWakeup {
				u.log.Info("unexpected mailbox subject", zap.String("subject", m.Subject))
				continue
			}
			u.wakeup(ctx)
		}
	}
}

func (u *Updater) wakeup(ctx context.Context) {
	if err := u.Wakeup(ctx); err != nil {
		u.log.Warn("inventory update failed", zap.Error(err))
	}
}

// Wakeup finds the local rack controller and publishes its inventory.
func (u *Updater) Wakeup(ctx context.Context) error {
	names, err := u.rackControllers(ctx)
	if err != nil {
		return err
	}
	local, err := u.interfaces()
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}
	localIPs := map[string]bool{}
	for _, i := range local {
		for _, ip := range i.IPs {
			localIPs[ip] = true
		}
	}

	var target string
	var active []string
	for _, name := range names {
		detail, err := u.detail(ctx, name)
		if err != nil {
			u.log.Info("rack controller detail unavailable", zap.String("asset", name), zap.Error(err))
			continue
		}
		if detail.Aux[auxStatus] != models.StatusActive {
			continue
		}
		active = append(active, name)
		if matchesIP(detail, localIPs) {
			target = name
			break
		}
	}
	if target == "" && len(active) == 1 {
		target = active[0]
	}
	if target == "" {
		u.log.Debug("no local rack controller", zap.Strings("candidates", names), zap.Strings("active", active))
		return nil
	}
	return u.publish(ctx, target, local)
}

func (u *Updater) rackControllers(ctx context.Context) ([]string, error) {
	tracker := uuid.NewString()
	rctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	rep, err := u.bus.Request(rctx, u.agent, "ASSETS", bus.StringFrames("GET", tracker, rackController)...)
	if err != nil {
		return nil, err
	}
	if rep.Frame(0) != tracker || rep.Frame(1) != "OK" {
		return nil, fmt.Errorf("unexpected ASSETS reply %q", rep.Strings())
	}
	return rep.Strings()[2:], nil
}

func (u *Updater) detail(ctx context.Context, name string) (*ftyproto.Message, error) {
	tracker := uuid.NewString()
	rctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	rep, err := u.bus.Request(rctx, u.agent, "ASSET_DETAIL", bus.StringFrames("GET", tracker, name)...)
	if err != nil {
		return nil, err
	}
	if rep.Frame(0) != tracker || rep.Len() < 2 || !ftyproto.IsFtyProto(rep.Frames[1]) {
		return nil, fmt.Errorf("unexpected ASSET_DETAIL reply %q", rep.Strings())
	}
	return ftyproto.Decode(rep.Frames[1])
}

func matchesIP(m *ftyproto.Message, local map[string]bool) bool {
	for k, v := range m.Ext {
		if strings.HasPrefix(k, "ip.") && local[v] {
			return true
		}
	}
	return false
}

func (u *Updater) publish(ctx context.Context, iname string, local []Interface) error {
	ext := map[string]string{}
	n := 0
	for _, i := range local {
		for _, ip := range i.IPs {
			n++
			ext["ip."+strconv.Itoa(n)] = ip
		}
	}
	n = 0
	for _, i := range local {
		if i.MAC == "" {
			continue
		}
		n++
		ext["mac."+strconv.Itoa(n)] = i.MAC
	}
	if host, err := u.hostname(); err == nil && host != "" {
		ext["hostname.1"] = host
	}
	if fqdn := u.fqdn(ctx, local); fqdn != "" {
		ext["fqdn.1"] = fqdn
	}

	m := ftyproto.NewAsset(iname, ftyproto.OpInventory,
		map[string]string{"type": "device", "subtype": rackController}, ext)
	frame, err := ftyproto.Encode(m)
	if err != nil {
		return err
	}
	subject := models.Subject("device", rackController, iname)
	if err := u.bus.Publish(ctx, bus.StreamAssets, subject, frame); err != nil {
		return err
	}
	u.log.Info("inventory published", zap.String("subject", subject), zap.Int("attributes", len(ext)))
	return nil
}

func (u *Updater) fqdn(ctx context.Context, local []Interface) string {
	for _, i := range local {
		for _, ip := range i.IPs {
			rctx, cancel := context.WithTimeout(ctx, u.timeout)
			names, err := u.lookupAddr(rctx, ip)
			cancel()
			if err == nil && len(names) > 0 {
				return strings.TrimSuffix(names[0], ".")
			}
		}
	}
	return ""
}

// LocalInterfaces lists the IPv4 addresses and hardware addresses of the
// non-loopback interfaces that are up.
func LocalInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []Interface
	for _, i := range ifaces {
		if i.Flags&net.FlagUp == 0 || i.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := i.Addrs()
		if err != nil {
			continue
		}
		it := Interface{Name: i.Name, MAC: i.HardwareAddr.String()}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			it.IPs = append(it.IPs, ipnet.IP.String())
		}
		if len(it.IPs) > 0 {
			out = append(out, it)
		}
	}
	return out, nil
}
