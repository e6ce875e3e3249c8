package wire_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"actionsync/internal/action"
	"actionsync/internal/wire"
)

func roundTrip(t *testing.T, m wire.Message) wire.Message {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	var out wire.Message
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestConnectRoundTrip(t *testing.T) {
	msg, err := wire.NewConnect(wire.Protocol{Major: 0, Minor: 2}, "client1", 42, &wire.Opts{Subprotocol: "1.0.0"})
	require.NoError(t, err)

	out := roundTrip(t, msg)
	require.Equal(t, wire.TagConnect, out.Tag)

	proto, nodeID, synced, opts, err := wire.ParseConnect(out)
	require.NoError(t, err)
	require.Equal(t, wire.Protocol{Major: 0, Minor: 2}, proto)
	require.Equal(t, "client1", nodeID)
	require.EqualValues(t, 42, synced)
	require.NotNil(t, opts)
	require.Equal(t, "1.0.0", opts.Subprotocol)
}

func TestConnectWithoutOpts(t *testing.T) {
	msg, err := wire.NewConnect(wire.Protocol{Major: 0, Minor: 1}, "client1", 0, nil)
	require.NoError(t, err)

	out := roundTrip(t, msg)
	_, _, _, opts, err := wire.ParseConnect(out)
	require.NoError(t, err)
	require.Nil(t, opts)
}

func TestSyncRoundTrip(t *testing.T) {
	id := action.Id{Time: 5, NodeID: "a", Sequence: 1}
	entries := []wire.SyncEntry{
		{Action: action.Action{"type": "ADD", "text": "hi"}, Meta: action.Meta{ID: id, Time: 5, Added: 3, Reasons: []string{"r"}}},
	}
	msg, err := wire.NewSync(3, entries)
	require.NoError(t, err)

	out := roundTrip(t, msg)
	synced, got, err := wire.ParseSync(out)
	require.NoError(t, err)
	require.EqualValues(t, 3, synced)
	require.Len(t, got, 1)
	require.Equal(t, "ADD", got[0].Action.Type())
	require.Equal(t, id, got[0].Meta.ID)
	require.Equal(t, []string{"r"}, got[0].Meta.Reasons)
}

func TestPingMissingPayloadIsWrongFormat(t *testing.T) {
	raw := []byte(`["ping"]`)
	var m wire.Message
	require.NoError(t, json.Unmarshal(raw, &m))

	_, err := wire.ParsePing(m)
	require.Error(t, err)
	var fe *wire.FormatError
	require.ErrorAs(t, err, &fe)
}

func TestPingNonIntegerPayloadIsWrongFormat(t *testing.T) {
	raw := []byte(`["ping","abc"]`)
	var m wire.Message
	require.NoError(t, json.Unmarshal(raw, &m))

	_, err := wire.ParsePing(m)
	require.Error(t, err)
}

func TestErrorRoundTrip(t *testing.T) {
	msg, err := wire.NewError("wrong-format", `["ping","abc"]`)
	require.NoError(t, err)

	out := roundTrip(t, msg)
	kind, detail, err := wire.ParseError(out)
	require.NoError(t, err)
	require.Equal(t, "wrong-format", kind)
	require.Equal(t, `["ping","abc"]`, detail)
}

func TestParseIDRoundTrip(t *testing.T) {
	id := action.Id{Time: 10, NodeID: "server:1", Sequence: 7}
	got, err := wire.ParseID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, got)
}
