package autoupdate

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus/bustest"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

func TestMain(m *testing.M) {
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type controller struct {
	ip       string
	inactive bool
}

// fakeAgent answers ASSETS and ASSET_DETAIL for the given controllers,
// keyed by iname.
func fakeAgent(t *testing.T, rec *bustest.Recorder, controllers map[string]controller, order ...string) {
	rec.Respond("asset-agent", func(req *bus.Message) (*bus.Message, error) {
		tracker := req.Frame(1)
		switch req.Subject {
		case "ASSETS":
			require.Equal(t, "rackcontroller", req.Frame(2))
			return bus.NewMessage("ASSETS", append([]string{tracker, "OK"}, order...)...), nil
		case "ASSET_DETAIL":
			c, ok := controllers[req.Frame(2)]
			if !ok {
				return bus.NewMessage("ASSET_DETAIL", tracker, "ERROR", "ASSET_NOT_FOUND"), nil
			}
			status := "active"
			if c.inactive {
				status = "nonactive"
			}
			raw, err := ftyproto.Encode(ftyproto.NewAsset(req.Frame(2), ftyproto.OpUpdate,
				map[string]string{"type": "device", "subtype": "rackcontroller", "status": status},
				map[string]string{"ip.1": c.ip}))
			require.NoError(t, err)
			return &bus.Message{Frames: [][]byte{[]byte(tracker), raw}}, nil
		}
		return nil, errors.New("unexpected subject " + req.Subject)
	})
}

func newUpdater(rec *bustest.Recorder) *Updater {
	return New(rec, "asset-agent", time.Second,
		WithInterfaces(func() ([]Interface, error) {
			return []Interface{
				{Name: "eth0", MAC: "00:11:22:33:44:55", IPs: []string{"10.0.0.2"}},
				{Name: "eth1", IPs: []string{"192.168.1.2", "192.168.1.3"}},
			}, nil
		}),
		WithHostname(func() (string, error) { return "rc", nil }),
		WithLookupAddr(func(_ context.Context, addr string) ([]string, error) {
			if addr == "10.0.0.2" {
				return []string{"rc.example.com."}, nil
			}
			return nil, errors.New("no PTR")
		}))
}

func TestWakeupPublishesLocalController(t *testing.T) {
	rec := bustest.NewRecorder("asset-autoupdate")
	fakeAgent(t, rec, map[string]controller{
		"rackcontroller-0": {ip: "10.9.9.9"},
		"rackcontroller-3": {ip: "192.168.1.3"},
	}, "rackcontroller-0", "rackcontroller-3")

	require.NoError(t, newUpdater(rec).Wakeup(context.Background()))

	published := rec.Published()
	require.Len(t, published, 1)
	require.Equal(t, bus.StreamAssets, published[0].Stream)
	require.Equal(t, "device.rackcontroller@rackcontroller-3", published[0].Subject)

	m, err := ftyproto.Decode(published[0].Frame)
	require.NoError(t, err)
	require.Equal(t, ftyproto.OpInventory, m.Operation)
	require.Equal(t, map[string]string{
		"ip.1":       "10.0.0.2",
		"ip.2":       "192.168.1.2",
		"ip.3":       "192.168.1.3",
		"mac.1":      "00:11:22:33:44:55",
		"hostname.1": "rc",
		"fqdn.1":     "rc.example.com",
	}, m.Ext)
}

func TestWakeupSingleControllerWithoutMatch(t *testing.T) {
	rec := bustest.NewRecorder("asset-autoupdate")
	fakeAgent(t, rec, map[string]controller{"rackcontroller-0": {ip: "10.9.9.9"}}, "rackcontroller-0")

	require.NoError(t, newUpdater(rec).Wakeup(context.Background()))
	require.Equal(t, []string{"device.rackcontroller@rackcontroller-0"}, bustest.Subjects(rec.Published()))
}

func TestWakeupSkipsInactiveControllers(t *testing.T) {
	rec := bustest.NewRecorder("asset-autoupdate")
	fakeAgent(t, rec, map[string]controller{
		"rackcontroller-0": {ip: "10.0.0.2", inactive: true},
		"rackcontroller-1": {ip: "10.9.9.8"},
	}, "rackcontroller-0", "rackcontroller-1")

	require.NoError(t, newUpdater(rec).Wakeup(context.Background()))
	require.Equal(t, []string{"device.rackcontroller@rackcontroller-1"}, bustest.Subjects(rec.Published()))

	t.Run("single inactive controller", func(t *testing.T) {
		rec := bustest.NewRecorder("asset-autoupdate")
		fakeAgent(t, rec, map[string]controller{"rackcontroller-0": {ip: "10.9.9.9", inactive: true}}, "rackcontroller-0")
		require.NoError(t, newUpdater(rec).Wakeup(context.Background()))
		require.Empty(t, rec.Published())
	})
}

func TestWakeupWithoutLocalController(t *testing.T) {
	rec := bustest.NewRecorder("asset-autoupdate")
	fakeAgent(t, rec, map[string]controller{
		"rackcontroller-0": {ip: "10.9.9.9"},
		"rackcontroller-1": {ip: "10.9.9.8"},
	}, "rackcontroller-0", "rackcontroller-1", "rackcontroller-7")

	require.NoError(t, newUpdater(rec).Wakeup(context.Background()))
	require.Empty(t, rec.Published())
}

func TestWakeupWithoutAgent(t *testing.T) {
	rec := bustest.NewRecorder("asset-autoupdate")
	err := newUpdater(rec).Wakeup(context.Background())
	require.ErrorIs(t, err, bus.ErrTimeout)
}

func TestRunWakesUpOnMessage(t *testing.T) {
	rec := bustest.NewRecorder("asset-autoupdate")
	fakeAgent(t, rec, map[string]controller{"rackcontroller-0": {ip: "10.0.0.2"}}, "rackcontroller-0")

	ctx, cancel := context.WithCancel(context.Background())
	mailbox := make(chan *bus.Message)
	done := make(chan error, 1)
	go func() { done <- newUpdater(rec).Run(ctx, time.Hour, mailbox) }()

	var count int
	require.Eventually(t, func() bool {
		count += len(rec.Published())
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)

	mailbox <- bus.NewMessage("PING")
	mailbox <- bus.NewMessage(SubjectWakeup)
	require.Eventually(t, func() bool {
		count += len(rec.Published())
		return count == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
