// Package sam implements a minimal SAM v3 client: the line-oriented
// control protocol a local I2P router exposes for applications.  It
// covers exactly what retsh needs — handshake, destination generation,
// datagram session creation, and datagram send/receive.
//
// Default SAM port: 7656.
package sam

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"retsh/internal/errors"
	"retsh/util"
)

// DefaultAddress is the conventional SAM bridge endpoint.
const DefaultAddress = "127.0.0.1:7656"

// protocolVersion is the only SAM version retsh speaks.
const protocolVersion = "3.1"

// Conn is a connection to the SAM bridge.  It is stateful: the
// handshake happens at dial time and a datagram session is bound to
// the connection for its lifetime.
//
// Conn is not safe for concurrent use; the transport layer serializes
// access to it.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	log    *util.Logger
}

// Dial connects to the SAM bridge at addr and performs the protocol
// handshake.
func Dial(ctx context.Context, addr string, logger *util.Logger) (*Conn, error) {
	logger = logger.With("sam")
	logger.Verbose("connecting to SAM bridge at %s", addr)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.WrapNetwork("dial", addr, err)
	}

	c := &Conn{conn: conn, reader: bufio.NewReader(conn), log: logger}
	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) handshake() error {
	hello := fmt.Sprintf("HELLO VERSION MIN=%s MAX=%s\n", protocolVersion, protocolVersion)
	if err := c.writeLine(hello); err != nil {
		return errors.WrapNetwork("handshake", "", err)
	}

	reply, err := c.readLine()
	if err != nil {
		return errors.WrapNetwork("handshake", "", err)
	}
	c.log.Debug("handshake reply: %s", reply)

	if !strings.HasPrefix(reply, "HELLO REPLY") {
		return errors.WrapNetwork("handshake", "", fmt.Errorf("unexpected reply: %s", reply))
	}
	if !strings.Contains(reply, "RESULT=OK") {
		return errors.WrapNetwork("handshake", "", fmt.Errorf("handshake failed: %s", reply))
	}
	return nil
}

// GenerateDestination asks the router for a new Ed25519 (signature
// type 7) destination and returns its private descriptor, which also
// embeds the public half.
func (c *Conn) GenerateDestination() (string, error) {
	if err := c.writeLine("DEST GENERATE SIGNATURE_TYPE=7\n"); err != nil {
		return "", errors.WrapNetwork("dest-generate", "", err)
	}

	reply, err := c.readLine()
	if err != nil {
		return "", errors.WrapNetwork("dest-generate", "", err)
	}
	if !strings.HasPrefix(reply, "DEST REPLY") {
		return "", errors.WrapNetwork("dest-generate", "", fmt.Errorf("unexpected reply: %s", reply))
	}

	for _, field := range strings.Fields(reply) {
		if priv, ok := strings.CutPrefix(field, "PRIV="); ok {
			return priv, nil
		}
	}
	return "", errors.WrapNetwork("dest-generate", "", errors.New("reply has no PRIV field"))
}

// CreateDatagramSession opens a DATAGRAM-style session under the given
// id.  An empty destination creates a transient one.
func (c *Conn) CreateDatagramSession(sessionID, destination string) error {
	dest := "TRANSIENT"
	if destination != "" {
		dest = destination
	}

	cmd := fmt.Sprintf(
		"SESSION CREATE STYLE=DATAGRAM ID=%s DESTINATION=%s SIGNATURE_TYPE=7 PORT=0 HOST=127.0.0.1 FROM_PORT=0\n",
		sessionID, dest)
	if err := c.writeLine(cmd); err != nil {
		return errors.WrapNetwork("session-create", "", err)
	}

	reply, err := c.readLine()
	if err != nil {
		return errors.WrapNetwork("session-create", "", err)
	}
	c.log.Debug("session create reply: %s", reply)

	if !strings.HasPrefix(reply, "SESSION STATUS") {
		return errors.WrapNetwork("session-create", "", fmt.Errorf("unexpected reply: %s", reply))
	}
	if !strings.Contains(reply, "RESULT=OK") {
		return errors.WrapNetwork("session-create", "", fmt.Errorf("session creation failed: %s", reply))
	}

	c.log.Verbose("datagram session created: %s", sessionID)
	return nil
}

// SendDatagram transmits data to the given destination over the named
// session.  The header line and the raw payload go out in a single
// write so the bridge never sees a partial datagram.
func (c *Conn) SendDatagram(sessionID, destination string, data []byte) error {
	header := fmt.Sprintf("DATAGRAM SEND ID=%s DESTINATION=%s SIZE=%d\n",
		sessionID, destination, len(data))

	buf := make([]byte, 0, len(header)+len(data))
	buf = append(buf, header...)
	buf = append(buf, data...)

	if _, err := c.conn.Write(buf); err != nil {
		return errors.WrapNetwork("datagram-send", "", err)
	}
	c.log.Debug("datagram sent: %d bytes", len(data))
	return nil
}

// ReceiveDatagram blocks until one datagram arrives and returns the
// source destination string and the raw payload.
func (c *Conn) ReceiveDatagram() (string, []byte, error) {
	reply, err := c.readLine()
	if err != nil {
		return "", nil, errors.WrapNetwork("datagram-receive", "", err)
	}
	if !strings.HasPrefix(reply, "DATAGRAM RECEIVED") {
		return "", nil, errors.WrapNetwork("datagram-receive", "",
			fmt.Errorf("unexpected reply: %s", reply))
	}

	var destination string
	size := -1
	for _, field := range strings.Fields(reply) {
		if v, ok := strings.CutPrefix(field, "DESTINATION="); ok {
			destination = v
		}
		if v, ok := strings.CutPrefix(field, "SIZE="); ok {
			size, err = strconv.Atoi(v)
			if err != nil {
				return "", nil, errors.WrapNetwork("datagram-receive", "",
					fmt.Errorf("invalid SIZE field: %q", v))
			}
		}
	}
	if destination == "" {
		return "", nil, errors.WrapNetwork("datagram-receive", "",
			errors.New("reply has no DESTINATION field"))
	}
	if size < 0 {
		return "", nil, errors.WrapNetwork("datagram-receive", "",
			errors.New("reply has no SIZE field"))
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(c.reader, data); err != nil {
		return "", nil, errors.WrapNetwork("datagram-receive", "", err)
	}

	c.log.Debug("datagram received: %d bytes", size)
	return destination, data, nil
}

// Close tears down the bridge connection (and with it any session).
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) writeLine(line string) error {
	_, err := c.conn.Write([]byte(line))
	return err
}

func (c *Conn) readLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
