package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"actionsync/internal/action"
)

// FormatError reports a malformed message: wrong arity, or an element
// that doesn't decode to the type the grammar requires for its tag. The
// Raw field lets the caller include the offending JSON verbatim in an
// outgoing "error wrong-format" reply, per spec section 4.4/7.
type FormatError struct {
	Reason string
	Raw    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("wire: wrong format: %s: %s", e.Reason, e.Raw)
}

func formatErr(raw Message, reason string) error {
	data, _ := json.Marshal(raw)
	return &FormatError{Reason: reason, Raw: string(data)}
}

func arg(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

// ToWireMeta converts an action.Meta into its wire shape.
func ToWireMeta(meta action.Meta) WireMeta {
	return WireMeta{
		ID:      meta.ID.String(),
		Time:    meta.Time,
		Added:   meta.Added,
		Reasons: meta.Reasons,
		Extra:   meta.Extra,
	}
}

// FromWireMeta parses a WireMeta back into an action.Meta.
func FromWireMeta(w WireMeta) (action.Meta, error) {
	id, err := ParseID(w.ID)
	if err != nil {
		return action.Meta{}, err
	}
	return action.Meta{
		ID:      id,
		Time:    w.Time,
		Added:   w.Added,
		Reasons: w.Reasons,
		Extra:   w.Extra,
	}, nil
}

// ParseID parses the "time nodeId seq" wire representation of an Id.
func ParseID(s string) (action.Id, error) {
	parts := strings.SplitN(s, " ", 3)
	if len(parts) != 3 {
		return action.Id{}, fmt.Errorf("wire: malformed id %q", s)
	}
	t, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return action.Id{}, fmt.Errorf("wire: malformed id time %q: %w", s, err)
	}
	seq, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return action.Id{}, fmt.Errorf("wire: malformed id sequence %q: %w", s, err)
	}
	return action.Id{Time: t, NodeID: parts[1], Sequence: seq}, nil
}

// ── connect ─────────────────────────────────────────────────────────────

func NewConnect(protocol Protocol, nodeID string, synced int64, opts *Opts) (Message, error) {
	values := []any{protocol.asPair(), nodeID, synced}
	if opts != nil {
		values = append(values, opts)
	}
	return buildArgsFromSlice(TagConnect, values)
}

func ParseConnect(m Message) (protocol Protocol, nodeID string, synced int64, opts *Opts, err error) {
	if len(m.Args) < 3 || len(m.Args) > 4 {
		return protocol, "", 0, nil, formatErr(m, "connect wants 3 or 4 args")
	}
	var pair [2]int
	if err = arg(m.Args[0], &pair); err != nil {
		return protocol, "", 0, nil, formatErr(m, "connect protocol must be [major, minor]")
	}
	protocol = Protocol{Major: pair[0], Minor: pair[1]}
	if err = arg(m.Args[1], &nodeID); err != nil {
		return protocol, "", 0, nil, formatErr(m, "connect nodeId must be a string")
	}
	if err = arg(m.Args[2], &synced); err != nil {
		return protocol, "", 0, nil, formatErr(m, "connect synced must be an integer")
	}
	if len(m.Args) == 4 {
		var o Opts
		if err = arg(m.Args[3], &o); err != nil {
			return protocol, "", 0, nil, formatErr(m, "connect opts must be an object")
		}
		opts = &o
	}
	return protocol, nodeID, synced, opts, nil
}

// ── connected ───────────────────────────────────────────────────────────

func NewConnected(protocol Protocol, nodeID string, start, end int64, opts *Opts) (Message, error) {
	values := []any{protocol.asPair(), nodeID, [2]int64{start, end}}
	if opts != nil {
		values = append(values, opts)
	}
	return buildArgsFromSlice(TagConnected, values)
}

func ParseConnected(m Message) (protocol Protocol, nodeID string, start, end int64, opts *Opts, err error) {
	if len(m.Args) < 3 || len(m.Args) > 4 {
		return protocol, "", 0, 0, nil, formatErr(m, "connected wants 3 or 4 args")
	}
	var pair [2]int
	if err = arg(m.Args[0], &pair); err != nil {
		return protocol, "", 0, 0, nil, formatErr(m, "connected protocol must be [major, minor]")
	}
	protocol = Protocol{Major: pair[0], Minor: pair[1]}
	if err = arg(m.Args[1], &nodeID); err != nil {
		return protocol, "", 0, 0, nil, formatErr(m, "connected nodeId must be a string")
	}
	var times [2]int64
	if err = arg(m.Args[2], &times); err != nil {
		return protocol, "", 0, 0, nil, formatErr(m, "connected time window must be [start, end]")
	}
	if len(m.Args) == 4 {
		var o Opts
		if err = arg(m.Args[3], &o); err != nil {
			return protocol, "", 0, 0, nil, formatErr(m, "connected opts must be an object")
		}
		opts = &o
	}
	return protocol, nodeID, times[0], times[1], opts, nil
}

// ── ping / pong / synced ────────────────────────────────────────────────

func NewPing(synced int64) (Message, error)  { return buildArgs(TagPing, synced) }
func NewPong(synced int64) (Message, error)  { return buildArgs(TagPong, synced) }
func NewSynced(synced int64) (Message, error) { return buildArgs(TagSynced, synced) }

func parseSingleInt(m Message, want string) (int64, error) {
	if len(m.Args) != 1 {
		return 0, formatErr(m, want+" wants exactly 1 arg")
	}
	var n int64
	if err := arg(m.Args[0], &n); err != nil {
		return 0, formatErr(m, want+" arg must be an integer")
	}
	return n, nil
}

func ParsePing(m Message) (int64, error)   { return parseSingleInt(m, "ping") }
func ParsePong(m Message) (int64, error)   { return parseSingleInt(m, "pong") }
func ParseSynced(m Message) (int64, error) { return parseSingleInt(m, "synced") }

// ── sync ────────────────────────────────────────────────────────────────

// SyncEntry is one (action, meta) pair inside a sync message.
type SyncEntry struct {
	Action action.Action
	Meta   action.Meta
}

func NewSync(synced int64, entries []SyncEntry) (Message, error) {
	args := make([]any, 0, len(entries)*2+1)
	args = append(args, synced)
	for _, e := range entries {
		args = append(args, e.Action, ToWireMeta(e.Meta))
	}
	return buildArgsFromSlice(TagSync, args)
}

func ParseSync(m Message) (synced int64, entries []SyncEntry, err error) {
	if len(m.Args) < 1 {
		return 0, nil, formatErr(m, "sync wants at least 1 arg")
	}
	if err = arg(m.Args[0], &synced); err != nil {
		return 0, nil, formatErr(m, "sync first arg must be an integer")
	}
	rest := m.Args[1:]
	if len(rest)%2 != 0 {
		return 0, nil, formatErr(m, "sync action/meta pairs must come in twos")
	}
	for i := 0; i < len(rest); i += 2 {
		var act action.Action
		if err = arg(rest[i], &act); err != nil {
			return 0, nil, formatErr(m, "sync action must be an object")
		}
		var wm WireMeta
		if err = arg(rest[i+1], &wm); err != nil {
			return 0, nil, formatErr(m, "sync meta must be an object")
		}
		meta, perr := FromWireMeta(wm)
		if perr != nil {
			return 0, nil, formatErr(m, "sync meta.id malformed")
		}
		entries = append(entries, SyncEntry{Action: act, Meta: meta})
	}
	return synced, entries, nil
}

// ── error / debug ───────────────────────────────────────────────────────

func NewError(kind string, detail string) (Message, error) {
	if detail == "" {
		return buildArgs(TagError, kind)
	}
	return buildArgs(TagError, kind, detail)
}

func ParseError(m Message) (kind string, detail string, err error) {
	if len(m.Args) < 1 || len(m.Args) > 2 {
		return "", "", formatErr(m, "error wants 1 or 2 args")
	}
	if err = arg(m.Args[0], &kind); err != nil {
		return "", "", formatErr(m, "error kind must be a string")
	}
	if len(m.Args) == 2 {
		if err = arg(m.Args[1], &detail); err != nil {
			return "", "", formatErr(m, "error detail must be a string")
		}
	}
	return kind, detail, nil
}

func NewDebug(kind string, data any) (Message, error) {
	return buildArgs(TagDebug, kind, data)
}

func ParseDebug(m Message) (kind string, data json.RawMessage, err error) {
	if len(m.Args) != 2 {
		return "", nil, formatErr(m, "debug wants exactly 2 args")
	}
	if err = arg(m.Args[0], &kind); err != nil {
		return "", nil, formatErr(m, "debug type must be a string")
	}
	return kind, m.Args[1], nil
}

// ── helpers ─────────────────────────────────────────────────────────────

func (p Protocol) asPair() [2]int { return [2]int{p.Major, p.Minor} }

func buildArgs(tag Tag, values ...any) (Message, error) {
	return buildArgsFromSlice(tag, values)
}

func buildArgsFromSlice(tag Tag, values []any) (Message, error) {
	args := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return Message{}, err
		}
		args = append(args, data)
	}
	return Message{Tag: tag, Args: args}, nil
}
