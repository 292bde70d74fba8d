// Package ping implements the Minecraft server list ping, which reports a
// server's MOTD, player count and version without logging in.
package ping

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the game's default TCP port.
const DefaultPort = 25565

// protocolVersion is sent in the handshake; servers answer a status request
// whatever the client's version.
const protocolVersion = 110

// maxResponse bounds the status JSON we are willing to read.
const maxResponse = 1 << 20

// Result is the decoded status response.
type Result struct {
	Address       string        `json:"address" yaml:"address"`
	MOTD          string        `json:"motd" yaml:"motd"`
	PlayersOnline int           `json:"players_online" yaml:"players_online"`
	PlayersMax    int           `json:"players_max" yaml:"players_max"`
	Version       string        `json:"version" yaml:"version"`
	Protocol      int           `json:"protocol" yaml:"protocol"`
	Latency       time.Duration `json:"latency" yaml:"latency"`
}

type statusResponse struct {
	Description json.RawMessage `json:"description"`
	Players     *struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
}

// Ping queries the server at host:port.
func Ping(ctx context.Context, host string, port int) (*Result, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var d net.Dialer
	started := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(10 * time.Second))
	}

	if _, err := conn.Write(handshake(host, uint16(port))); err != nil {
		return nil, fmt.Errorf("failed to send handshake: %w", err)
	}
	// Status request: length 1, packet id 0x00.
	if _, err := conn.Write([]byte{0x01, 0x00}); err != nil {
		return nil, fmt.Errorf("failed to send status request: %w", err)
	}

	body, err := readStatus(bufio.NewReader(conn))
	if err != nil {
		return nil, err
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}

	res := &Result{
		Address:  addr,
		MOTD:     describe(resp.Description),
		Version:  resp.Version.Name,
		Protocol: resp.Version.Protocol,
		Latency:  time.Since(started),
	}
	if resp.Players != nil {
		res.PlayersOnline = resp.Players.Online
		res.PlayersMax = resp.Players.Max
	}
	return res, nil
}

// handshake builds the length-prefixed handshake packet with next state 1.
func handshake(host string, port uint16) []byte {
	payload := []byte{0x00}
	payload = AppendVarInt(payload, protocolVersion)
	payload = AppendVarInt(payload, int32(len(host)))
	payload = append(payload, host...)
	payload = binary.BigEndian.AppendUint16(payload, port)
	payload = AppendVarInt(payload, 1)

	packet := AppendVarInt(nil, int32(len(payload)))
	return append(packet, payload...)
}

func readStatus(r *bufio.Reader) ([]byte, error) {
	if _, err := ReadVarInt(r); err != nil {
		return nil, fmt.Errorf("failed to read packet length: %w", err)
	}
	id, err := ReadVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read packet id: %w", err)
	}
	if id != 0x00 {
		return nil, fmt.Errorf("unexpected packet id 0x%02x in status response", id)
	}
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read response length: %w", err)
	}
	if n < 0 || n > maxResponse {
		return nil, fmt.Errorf("status response length %d out of range", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}
	return body, nil
}

// describe flattens the description, which is either a plain string or a
// chat component with optional "extra" children.
func describe(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	type component struct {
		Text  string      `json:"text"`
		Extra []component `json:"extra"`
	}
	var c component
	if err := json.Unmarshal(raw, &c); err != nil {
		return ""
	}
	var b strings.Builder
	var walk func(component)
	walk = func(c component) {
		b.WriteString(c.Text)
		for _, e := range c.Extra {
			walk(e)
		}
	}
	walk(c)
	return b.String()
}
