// Package state drives a connection through the protocol states. Every state
// is a table of packet handlers; Machine.Step is the only place a session's
// state changes.
package state

import (
	"errors"
	"fmt"

	"github.com/Mmx233/limbo/protocol"
	"github.com/Mmx233/limbo/server/auth"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// State is a protocol state of one connection.
type State uint8

const (
	Handshake State = iota
	Status
	Login
	Configuration
	Play
	Closed
)

func (s State) String() string {
	switch s {
	case Handshake:
		return "handshake"
	case Status:
		return "status"
	case Login:
		return "login"
	case Configuration:
		return "configuration"
	case Play:
		return "play"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// FallbackUsername is the identity name used until the client declares one.
const FallbackUsername = "Player"

// ForwardingQueryID correlates the forwarding plugin request with its response.
const ForwardingQueryID = 1

var (
	ErrUnexpectedPacket   = errors.New("unexpected packet")
	ErrQueryMismatch      = errors.New("plugin response does not match outstanding query")
	ErrForwardingRefused  = errors.New("proxy did not answer the forwarding query")
	ErrEmptyForwarding    = errors.New("empty forwarding payload")
	ErrForwardingRequired = errors.New("login acknowledged before identity was established")
)

// Session is the per-connection protocol state. It is a plain value: Step
// takes one and returns the next.
type Session struct {
	State    State
	Username string
	UUID     uuid.UUID

	// Query is the outstanding forwarding query id, zero when none.
	Query int32
	// LoginSent is set once login success has been queued.
	LoginSent bool
}

// NewSession returns a session in the Handshake state with a fallback identity.
func NewSession() Session {
	return Session{
		State:    Handshake,
		Username: FallbackUsername,
		UUID:     uuid.New(),
	}
}

// Output is what a single step asks the transport to do.
type Output struct {
	Frames          [][]byte
	CloseAfterFlush bool
}

type handler func(m *Machine, s Session, r *protocol.Reader) (Session, Output, error)

type table struct {
	handlers map[int32]handler
	// strict closes the connection on an unknown packet id instead of
	// ignoring it.
	strict bool
}

// Sequencer provides the scripted frames sent on entering configuration and play.
type Sequencer interface {
	Configuration() [][]byte
	Play() [][]byte
}

type Config struct {
	// Forwarding requires a signed identity from the proxy before login succeeds.
	Forwarding      bool
	MOTD            string
	VersionName     string
	ProtocolVersion int32
}

type Machine struct {
	conf     Config
	verifier auth.Verifier
	seq      Sequencer
	tables   map[State]table

	status []byte
}

// New builds the state tables. verifier may be nil when forwarding is disabled.
func New(conf Config, verifier auth.Verifier, seq Sequencer) (*Machine, error) {
	if conf.Forwarding && verifier == nil {
		return nil, errors.New("forwarding enabled without a verifier")
	}
	if seq == nil {
		return nil, errors.New("sequencer is required")
	}
	if conf.VersionName == "" {
		conf.VersionName = protocol.VersionName
	}
	if conf.ProtocolVersion == 0 {
		conf.ProtocolVersion = protocol.ProtocolVersion
	}

	m := &Machine{
		conf:     conf,
		verifier: verifier,
		seq:      seq,
	}

	doc, err := json.Marshal(newStatusDocument(conf))
	if err != nil {
		return nil, fmt.Errorf("marshal status document: %w", err)
	}
	m.status = protocol.Encode(protocol.StatusResponse, func(w *protocol.Writer) {
		w.WriteString(string(doc))
	})

	login := table{handlers: map[int32]handler{
		protocol.LoginStart:        (*Machine).loginStart,
		protocol.LoginAcknowledged: (*Machine).loginAcknowledged,
	}}
	if conf.Forwarding {
		login.handlers[protocol.LoginPluginResponse] = (*Machine).pluginResponse
	}

	m.tables = map[State]table{
		Handshake: {
			handlers: map[int32]handler{protocol.HandshakeIntention: (*Machine).handshake},
			strict:   true,
		},
		Status: {handlers: map[int32]handler{
			protocol.StatusRequest: (*Machine).statusRequest,
			protocol.StatusPing:    (*Machine).statusPing,
		}},
		Login: login,
		Configuration: {handlers: map[int32]handler{
			protocol.ConfigFinishAcknowledged: (*Machine).finishConfiguration,
		}},
		Play: {},
	}
	return m, nil
}

// Step dispatches one complete frame body (packet id and payload). On error
// the returned session is Closed and the connection must be torn down.
func (m *Machine) Step(s Session, frame []byte) (Session, Output, error) {
	if s.State == Closed {
		return s, Output{}, ErrUnexpectedPacket
	}

	r := protocol.NewReader(frame)
	id, err := r.ReadVarInt()
	if err != nil {
		s.State = Closed
		return s, Output{}, fmt.Errorf("read packet id: %w", err)
	}

	t := m.tables[s.State]
	h, ok := t.handlers[id]
	if !ok {
		if t.strict {
			err := fmt.Errorf("%w: id 0x%02X in %s", ErrUnexpectedPacket, id, s.State)
			s.State = Closed
			return s, Output{}, err
		}
		return s, Output{}, nil
	}

	next, out, err := h(m, s, r)
	if err != nil {
		next.State = Closed
		return next, Output{}, fmt.Errorf("%s packet 0x%02X: %w", s.State, id, err)
	}
	return next, out, nil
}

// KeepAlive encodes a play keep-alive carrying id.
func KeepAlive(id int64) []byte {
	return protocol.Encode(protocol.PlayKeepAlive, func(w *protocol.Writer) {
		w.WriteInt64(id)
	})
}
