package forwarding

import (
	"github.com/Mmx233/limbo/protocol"
	"github.com/google/uuid"
)

// Property is a game profile property carried in the payload.
type Property struct {
	Name      string
	Value     string
	Signature string // empty means unsigned
}

// Payload is the proxy-side view of forwarded player data.
type Payload struct {
	Version    int32
	Address    string
	UUID       uuid.UUID
	Username   string
	Properties []Property
}

// Encode returns the unsigned data portion of the payload.
func (p Payload) Encode() []byte {
	w := protocol.GetWriter()
	defer protocol.PutWriter(w)

	w.WriteVarInt(p.Version)
	w.WriteString(p.Address)
	w.WriteUUID(p.UUID)
	w.WriteString(p.Username)
	w.WriteVarInt(int32(len(p.Properties)))
	for _, prop := range p.Properties {
		w.WriteString(prop.Name)
		w.WriteString(prop.Value)
		w.WriteBool(prop.Signature != "")
		if prop.Signature != "" {
			w.WriteString(prop.Signature)
		}
	}

	out := make([]byte, w.Len())
	copy(out, w.Bytes())
	return out
}

// Sign returns signature ++ data, the form a proxy sends in its plugin response.
func Sign(secret []byte, p Payload) []byte {
	data := p.Encode()
	return append(ComputeSignature(secret, data), data...)
}
