//go:build linux

package e2e

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mmx233/limbo/config"
	"github.com/Mmx233/limbo/protocol"
	"github.com/Mmx233/limbo/server"
	"github.com/Mmx233/limbo/server/auth/forwarding"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

const registryDoc = `{
  "registries": [
    {"id": "minecraft:dimension_type", "entries": [
      {"key": "minecraft:overworld"},
      {"key": "minecraft:overworld_caves"},
      {"key": "minecraft:the_end"},
      {"key": "minecraft:the_nether"}
    ]}
  ],
  "tags": []
}`

const secret = "lifecycle-secret-0123456789"

// getFreePort returns a free TCP port on localhost
func getFreePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// writeFixtures writes a config file, a forwarding secret file and gzipped
// registry tables, returning the config path.
func writeFixtures(t *testing.T, port int) string {
	dir := t.TempDir()

	registryPath := filepath.Join(dir, "registry.json.gz")
	f, err := os.Create(registryPath)
	if err != nil {
		t.Fatalf("create registry: %v", err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(registryDoc)); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	f.Close()

	secretPath := filepath.Join(dir, "forwarding.secret")
	if err := os.WriteFile(secretPath, []byte(secret+"\n"), 0600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`listen:
  ip: "127.0.0.1"
  port: %d
motd: "lifecycle"
dimension: the_nether
keep_alive_interval: 200ms
poll_timeout: 2ms
forwarding:
  enabled: true
  secret_file: %q
registry: %q
`, port, secretPath, registryPath)
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func connect(t *testing.T, addr string) *client {
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return &client{conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(t *testing.T, id int32, build func(w *protocol.Writer)) {
	if _, err := c.conn.Write(protocol.Encode(id, build)); err != nil {
		t.Fatalf("send 0x%02X: %v", id, err)
	}
}

func (c *client) recv(t *testing.T) (int32, *protocol.Reader) {
	var length uint32
	for i := 0; ; i++ {
		b, err := c.r.ReadByte()
		if err != nil {
			t.Fatalf("read frame length: %v", err)
		}
		length |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			break
		}
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(c.r, body); err != nil {
		t.Fatalf("read frame body: %v", err)
	}
	r := protocol.NewReader(body)
	id, err := r.ReadVarInt()
	if err != nil {
		t.Fatalf("read packet id: %v", err)
	}
	return id, r
}

func startServer(t *testing.T) string {
	port := getFreePort(t)
	cfg, err := config.LoadServerConfig(writeFixtures(t, port))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Start(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("server error: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cfg.Listen.Addr()
}

// TestForwardedLoginLifecycle drives a full proxied login against a server
// started from files, then idles long enough to see keep-alives.
func TestForwardedLoginLifecycle(t *testing.T) {
	addr := startServer(t)
	c := connect(t, addr)

	c.send(t, protocol.HandshakeIntention, func(w *protocol.Writer) {
		w.WriteVarInt(protocol.ProtocolVersion)
		w.WriteString("limbo.internal")
		w.WriteUint16(25565)
		w.WriteVarInt(protocol.IntentLogin)
	})
	c.send(t, protocol.LoginStart, func(w *protocol.Writer) {
		w.WriteString("ProxyUser")
		w.WriteUUID(uuid.New())
	})

	id, r := c.recv(t)
	if id != protocol.LoginPluginRequest {
		t.Fatalf("expected plugin request, got 0x%02X", id)
	}
	query, _ := r.ReadVarInt()

	player := forwarding.Payload{Version: 1, Address: "198.51.100.1", UUID: uuid.New(), Username: "RealName"}
	c.send(t, protocol.LoginPluginResponse, func(w *protocol.Writer) {
		w.WriteVarInt(query)
		w.WriteBool(true)
		_, _ = w.Write(forwarding.Sign([]byte(secret), player))
	})

	if id, _ := c.recv(t); id != protocol.LoginSuccess {
		t.Fatalf("expected login success, got 0x%02X", id)
	}
	c.send(t, protocol.LoginAcknowledged, nil)

	registries := 0
	for {
		id, _ := c.recv(t)
		if id == protocol.ConfigRegistryData {
			registries++
		}
		if id == protocol.ConfigFinish {
			break
		}
	}
	if registries != 1 {
		t.Errorf("expected 1 registry data packet, got %d", registries)
	}
	c.send(t, protocol.ConfigFinishAcknowledged, nil)

	id, r = c.recv(t)
	if id != protocol.PlayLogin {
		t.Fatalf("expected join packet first, got 0x%02X", id)
	}
	// Skip entity id, hardcore, dimension list, max players, distances and flags.
	_, _ = r.ReadInt32()
	_, _ = r.ReadBool()
	_, _ = r.ReadVarInt()
	_, _ = r.ReadString()
	for i := 0; i < 3; i++ {
		_, _ = r.ReadVarInt()
	}
	for i := 0; i < 3; i++ {
		_, _ = r.ReadBool()
	}
	if dimType, _ := r.ReadVarInt(); dimType != 3 {
		t.Errorf("expected the_nether dimension type index 3, got %d", dimType)
	}

	keepAlives := 0
	for keepAlives < 2 {
		if id, _ := c.recv(t); id == protocol.PlayKeepAlive {
			keepAlives++
		}
	}
}

// TestAbruptDisconnect verifies that clients vanishing mid-frame or mid-login
// do not disturb other connections.
func TestAbruptDisconnect(t *testing.T) {
	addr := startServer(t)

	for i := 0; i < 10; i++ {
		c := connect(t, addr)
		frame := protocol.Encode(protocol.HandshakeIntention, func(w *protocol.Writer) {
			w.WriteVarInt(protocol.ProtocolVersion)
			w.WriteString("localhost")
			w.WriteUint16(25565)
			w.WriteVarInt(protocol.IntentLogin)
		})
		// Half a frame, then gone.
		_, _ = c.conn.Write(frame[:len(frame)/2])
		if tcp, ok := c.conn.(*net.TCPConn); ok {
			_ = tcp.SetLinger(0)
		}
		c.conn.Close()
	}

	c := connect(t, addr)
	c.send(t, protocol.HandshakeIntention, func(w *protocol.Writer) {
		w.WriteVarInt(protocol.ProtocolVersion)
		w.WriteString("localhost")
		w.WriteUint16(25565)
		w.WriteVarInt(protocol.IntentStatus)
	})
	c.send(t, protocol.StatusRequest, nil)
	if id, _ := c.recv(t); id != protocol.StatusResponse {
		t.Fatalf("expected status response after abrupt disconnects, got 0x%02X", id)
	}
}
