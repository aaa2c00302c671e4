package state

import (
	"fmt"

	"github.com/Mmx233/limbo/protocol"
	"github.com/Mmx233/limbo/server/auth/forwarding"
)

type statusVersion struct {
	Name     string `json:"name"`
	Protocol int32  `json:"protocol"`
}

type statusPlayers struct {
	Max    int `json:"max"`
	Online int `json:"online"`
}

type statusText struct {
	Text string `json:"text"`
}

type statusDocument struct {
	Version            statusVersion `json:"version"`
	Players            statusPlayers `json:"players"`
	Description        statusText    `json:"description"`
	EnforcesSecureChat bool          `json:"enforcesSecureChat"`
}

func newStatusDocument(conf Config) statusDocument {
	return statusDocument{
		Version:     statusVersion{Name: conf.VersionName, Protocol: conf.ProtocolVersion},
		Players:     statusPlayers{Max: 1, Online: 0},
		Description: statusText{Text: conf.MOTD},
	}
}

func (m *Machine) handshake(s Session, r *protocol.Reader) (Session, Output, error) {
	// Client protocol version is not checked.
	if _, err := r.ReadVarInt(); err != nil {
		return s, Output{}, fmt.Errorf("read protocol version: %w", err)
	}
	if _, err := r.ReadString(); err != nil {
		return s, Output{}, fmt.Errorf("read server address: %w", err)
	}
	if _, err := r.ReadUint16(); err != nil {
		return s, Output{}, fmt.Errorf("read server port: %w", err)
	}
	intent, err := r.ReadVarInt()
	if err != nil {
		return s, Output{}, fmt.Errorf("read intent: %w", err)
	}

	if intent == protocol.IntentStatus {
		s.State = Status
	} else {
		s.State = Login
	}
	return s, Output{}, nil
}

func (m *Machine) statusRequest(s Session, _ *protocol.Reader) (Session, Output, error) {
	return s, Output{Frames: [][]byte{m.status}}, nil
}

func (m *Machine) statusPing(s Session, r *protocol.Reader) (Session, Output, error) {
	payload, err := r.ReadBytes(8)
	if err != nil {
		return s, Output{}, fmt.Errorf("read ping payload: %w", err)
	}
	return s, Output{
		Frames:          [][]byte{protocol.Frame(protocol.StatusPong, payload)},
		CloseAfterFlush: true,
	}, nil
}

func (m *Machine) loginStart(s Session, r *protocol.Reader) (Session, Output, error) {
	username, err := r.ReadString()
	if err != nil {
		return s, Output{}, fmt.Errorf("read username: %w", err)
	}
	id, err := r.ReadUUID()
	if err != nil {
		return s, Output{}, err
	}
	s.Username = username
	s.UUID = id

	if m.conf.Forwarding {
		s.Query = ForwardingQueryID
		return s, Output{Frames: [][]byte{pluginRequest(s.Query)}}, nil
	}
	return m.loginSuccess(s)
}

func (m *Machine) pluginResponse(s Session, r *protocol.Reader) (Session, Output, error) {
	query, err := r.ReadVarInt()
	if err != nil {
		return s, Output{}, fmt.Errorf("read query id: %w", err)
	}
	if s.Query == 0 || query != s.Query {
		return s, Output{}, fmt.Errorf("%w: got %d, want %d", ErrQueryMismatch, query, s.Query)
	}
	successful, err := r.ReadBool()
	if err != nil {
		return s, Output{}, fmt.Errorf("read success flag: %w", err)
	}
	if !successful {
		return s, Output{}, ErrForwardingRefused
	}
	payload := r.Rest()
	if len(payload) == 0 {
		return s, Output{}, ErrEmptyForwarding
	}

	identity, err := m.verifier.Verify(payload)
	if err != nil {
		return s, Output{}, err
	}
	s.Query = 0
	s.Username = identity.Username
	s.UUID = identity.UUID
	return m.loginSuccess(s)
}

func (m *Machine) loginAcknowledged(s Session, _ *protocol.Reader) (Session, Output, error) {
	if s.Query != 0 || !s.LoginSent {
		return s, Output{}, ErrForwardingRequired
	}
	s.State = Configuration
	return s, Output{Frames: m.seq.Configuration()}, nil
}

func (m *Machine) finishConfiguration(s Session, _ *protocol.Reader) (Session, Output, error) {
	s.State = Play
	return s, Output{Frames: m.seq.Play()}, nil
}

func (m *Machine) loginSuccess(s Session) (Session, Output, error) {
	s.LoginSent = true
	frame := protocol.Encode(protocol.LoginSuccess, func(w *protocol.Writer) {
		w.WriteUUID(s.UUID)
		w.WriteString(s.Username)
		w.WriteVarInt(0) // properties
	})
	return s, Output{Frames: [][]byte{frame}}, nil
}

func pluginRequest(query int32) []byte {
	return protocol.Encode(protocol.LoginPluginRequest, func(w *protocol.Writer) {
		w.WriteVarInt(query)
		w.WriteString(forwarding.Channel)
		_ = w.WriteByte(forwarding.DefaultVersion)
	})
}
