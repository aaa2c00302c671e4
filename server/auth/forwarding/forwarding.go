package forwarding

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/Mmx233/limbo/protocol"
	"github.com/Mmx233/limbo/server/auth"
)

const (
	SignatureSize  = sha256.Size            // 32 bytes
	Channel        = "velocity:player_info" // Login plugin channel used by the proxy
	MinVersion     = 1                      // Oldest payload version we understand
	DefaultVersion = 1                      // Version requested in the plugin request
)

var (
	ErrEmptySecret        = errors.New("forwarding secret is empty")
	ErrShortPayload       = errors.New("forwarding payload shorter than signature")
	ErrBadSignature       = errors.New("forwarding signature mismatch")
	ErrUnsupportedVersion = errors.New("unsupported forwarding version")
)

// Verifier implements modern forwarding verification using HMAC-SHA256
type Verifier struct {
	secret []byte
}

// Ensure Verifier implements auth.Verifier interface
var _ auth.Verifier = (*Verifier)(nil)

// New creates a new forwarding verifier.
// The secret is copied to prevent external modification. An empty secret is
// accepted but every verification fails.
func New(secret []byte) *Verifier {
	secretCopy := make([]byte, len(secret))
	copy(secretCopy, secret)
	return &Verifier{secret: secretCopy}
}

// ComputeSignature computes HMAC-SHA256(secret, data)
func ComputeSignature(secret, data []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return mac.Sum(nil)
}

// VerifySignature verifies the signature using constant-time comparison.
// A zero-length secret never verifies.
func VerifySignature(secret, data, signature []byte) bool {
	if len(secret) == 0 {
		return false
	}
	return hmac.Equal(signature, ComputeSignature(secret, data))
}

// Verify checks signature(32) ++ signedData and returns the forwarded identity.
// Any structural error after a valid signature is returned as-is; the caller
// must treat it as fatal.
func (v *Verifier) Verify(payload []byte) (auth.Identity, error) {
	if len(v.secret) == 0 {
		return auth.Identity{}, ErrEmptySecret
	}
	if len(payload) < SignatureSize {
		return auth.Identity{}, ErrShortPayload
	}

	signature, data := payload[:SignatureSize], payload[SignatureSize:]
	if !VerifySignature(v.secret, data, signature) {
		return auth.Identity{}, ErrBadSignature
	}

	return Parse(data)
}

// Parse decodes the signed portion of a forwarding payload. Address and
// properties are consumed to keep the cursor aligned but not retained.
func Parse(data []byte) (auth.Identity, error) {
	r := protocol.NewReader(data)

	version, err := r.ReadVarInt()
	if err != nil {
		return auth.Identity{}, fmt.Errorf("read version: %w", err)
	}
	if version < MinVersion {
		return auth.Identity{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	if _, err := r.ReadString(); err != nil {
		return auth.Identity{}, fmt.Errorf("read address: %w", err)
	}

	id, err := r.ReadUUID()
	if err != nil {
		return auth.Identity{}, err
	}

	username, err := r.ReadString()
	if err != nil {
		return auth.Identity{}, fmt.Errorf("read username: %w", err)
	}

	count, err := r.ReadVarInt()
	if err != nil {
		return auth.Identity{}, fmt.Errorf("read property count: %w", err)
	}
	if count < 0 {
		return auth.Identity{}, fmt.Errorf("property count: %w", protocol.ErrNegativeCount)
	}
	for i := int32(0); i < count; i++ {
		if err := skipProperty(r); err != nil {
			return auth.Identity{}, fmt.Errorf("property %d: %w", i, err)
		}
	}

	return auth.Identity{UUID: id, Username: username}, nil
}

func skipProperty(r *protocol.Reader) error {
	if _, err := r.ReadString(); err != nil {
		return fmt.Errorf("read name: %w", err)
	}
	if _, err := r.ReadString(); err != nil {
		return fmt.Errorf("read value: %w", err)
	}
	signed, err := r.ReadBool()
	if err != nil {
		return fmt.Errorf("read signed flag: %w", err)
	}
	if signed {
		if _, err := r.ReadString(); err != nil {
			return fmt.Errorf("read signature: %w", err)
		}
	}
	return nil
}
