package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retsh/config"
	shellclient "retsh/internal/client"
	"retsh/internal/errors"
	"retsh/internal/identity"
	"retsh/internal/proto"
	"retsh/internal/transport"
	"retsh/util"
)

// startPair runs a real server and a real client over one loopback
// pair and returns the connected-but-not-yet-handshaken client.
func startPair(t *testing.T, tweak func(*config.Config)) *shellclient.Client {
	t.Helper()

	serverCfg := config.New()
	serverCfg.Listen = true
	clientCfg := config.New()
	clientCfg.ConnectTimeout = 5 * time.Second
	clientCfg.CommandTimeout = 10 * time.Second
	if tweak != nil {
		tweak(serverCfg)
		tweak(clientCfg)
	}

	clientEnd, serverEnd := transport.NewPair(testAddr(0xC1), testAddr(0x51))
	srv := New(serverCfg, identity.Generate(), serverEnd, util.NewLogger(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("server Run: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})

	return shellclient.New(clientCfg, identity.Generate(), clientEnd, testAddr(0x51), util.NewLogger(0))
}

func TestEndToEnd_CommandRoundTrip(t *testing.T) {
	cl := startPair(t, nil)

	if err := cl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if cl.SessionID() == (proto.SessionID{}) {
		t.Error("no session id after handshake")
	}

	resp, err := cl.ExecuteCommand(context.Background(), "echo", []string{"end", "to", "end"})
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if resp.ID != 1 {
		t.Errorf("response id = %d, want 1", resp.ID)
	}
	if resp.Status != proto.StatusSuccess {
		t.Errorf("status = %s (stderr: %s)", resp.Status, resp.Stderr)
	}
	if !strings.Contains(string(resp.Stdout), "end to end") {
		t.Errorf("stdout = %q", resp.Stdout)
	}
	if resp.ExitCode != 0 {
		t.Errorf("exit code = %d", resp.ExitCode)
	}

	if err := cl.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := cl.Disconnect(context.Background()); err != nil {
		t.Errorf("Disconnect: %v", err)
	}
}

func TestEndToEnd_ReconnectAfterDisconnect(t *testing.T) {
	cl := startPair(t, func(cfg *config.Config) {
		cfg.MaxSessions = 1
	})

	if err := cl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	first := cl.SessionID()

	if err := cl.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := cl.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if cl.SessionID() == first {
		t.Error("reconnect reused the old session id")
	}

	resp, err := cl.ExecuteCommand(context.Background(), "echo", []string{"again"})
	if err != nil {
		t.Fatalf("ExecuteCommand after reconnect: %v", err)
	}
	if resp.ID != 2 {
		t.Errorf("request id after reconnect = %d, want 2", resp.ID)
	}
}

func TestEndToEnd_RejectSurfacesToClient(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("required"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	// The server requires a token; the client presents none.
	cl := startPair(t, func(cfg *config.Config) {
		cfg.AuthTokenHash = string(hash)
	})

	err = cl.Connect(context.Background())
	var rej *errors.RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectedError", err)
	}
	if rej.Code != proto.RejectBadAuthToken {
		t.Errorf("code = %d, want %d", rej.Code, proto.RejectBadAuthToken)
	}
	if cl.State() != shellclient.StateDisconnected {
		t.Errorf("state = %s after reject", cl.State())
	}
}
