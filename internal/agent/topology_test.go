package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopology(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "dc1", "datacenter", "", "")
	f.seed(t, "feed-1", "device", "feed", "dc1")
	f.seed(t, "ups-1", "device", "ups", "dc1")
	f.seed(t, "srv-1", "device", "server", "dc1")
	f.link(t, "feed-1", "ups-1")
	f.link(t, "ups-1", "srv-1")

	tests := []struct {
		name   string
		frames []string
		want   []string
	}{
		{"power", []string{"REQUEST", "u-1", "POWER", "srv-1"},
			[]string{"u-1", "REPLY", "POWER", "srv-1", "OK", "ups-1", "feed-1"}},
		{"power unknown asset", []string{"REQUEST", "u-2", "POWER", "ghost"},
			[]string{"u-2", "REPLY", "POWER", "ghost", "ERROR", "Asset not found"}},
		{"missing argument", []string{"REQUEST", "u-3", "POWER_TO"},
			[]string{"u-3", "REPLY", "POWER_TO", "", "ERROR", "Missing argument"}},
		{"not a request", []string{"REPLY", "u-4", "POWER", "srv-1"},
			[]string{"u-4", "REPLY", "POWER", "ERROR", "REQUEST_MSGTYPE_EXPECTED (msg type: REPLY)"}},
		{"unknown command", []string{"REQUEST", "u-5", "COOLING", "srv-1"},
			[]string{"u-5", "REPLY", "COOLING", "ERROR", "UNEXPECTED_COMMAND (command: COOLING)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := f.mailbox(t, request(SubjectTopology, tt.frames...))
			require.Equal(t, SubjectTopology, rep.Subject)
			require.Equal(t, tt.want, rep.Strings())
		})
	}

	t.Run("json payloads", func(t *testing.T) {
		for _, frames := range [][]string{
			{"REQUEST", "u-6", "POWER_TO", "ups-1"},
			{"REQUEST", "u-7", "POWERCHAINS", "to", "srv-1"},
			{"REQUEST", "u-8", "INPUT_POWERCHAIN", "dc1"},
			{"REQUEST", "u-9", "LOCATION", "to", "srv-1"},
			{"REQUEST", "u-10", "LOCATION", "from", "dc1", "recursive=true"},
		} {
			rep := f.mailbox(t, request(SubjectTopology, frames...))
			require.Equal(t, "OK", rep.Frame(4), frames)
			require.True(t, json.Valid([]byte(rep.Frame(5))), frames)
		}
	})

	t.Run("location with bad selector", func(t *testing.T) {
		rep := f.mailbox(t, request(SubjectTopology, "REQUEST", "u-11", "LOCATION", "sideways", "dc1"))
		require.Equal(t, "ERROR", rep.Frame(4))
	})

	t.Run("incomplete header", func(t *testing.T) {
		require.Nil(t, f.mailbox(t, request(SubjectTopology, "REQUEST", "u-12")))
	})
}
