// SPDX-License-Identifier: MIT

// Command orion-agent runs on a worker and announces it to the control
// plane. Registration is idempotent, so the agent simply retries until the
// control plane accepts it, then exits.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orionhq/orion/internal/config"
	xlog "github.com/orionhq/orion/internal/log"
)

const (
	registerTimeout = 5 * time.Second
	maxBackoff      = 30 * time.Second
)

func main() {
	apiURL := flag.String("api", config.ParseString("ORION_API_URL", "http://localhost:8080"), "control plane base URL")
	hostname := flag.String("hostname", config.ParseString("ORION_AGENT_HOSTNAME", ""), "hostname to register (default: os hostname)")
	ip := flag.String("ip", config.ParseString("ORION_AGENT_IP", ""), "ip to register (default: autodetected)")
	sshPort := flag.Int("ssh-port", config.ParseInt("ORION_AGENT_SSH_PORT", 22), "ssh port to register")
	flag.Parse()

	xlog.Configure(xlog.Config{Service: "orion-agent"})
	logger := xlog.WithComponent("agent")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host := *hostname
	if host == "" {
		var err error
		if host, err = os.Hostname(); err != nil {
			logger.Fatal().Err(err).Msg("cannot determine hostname")
		}
	}
	addr := *ip
	if addr == "" {
		var err error
		if addr, err = detectIP(); err != nil {
			logger.Fatal().Err(err).Msg("cannot autodetect ip, pass -ip")
		}
	}

	backoff := time.Second
	for {
		nodeID, err := register(ctx, *apiURL, host, addr, *sshPort)
		if err == nil {
			logger.Info().
				Str("event", "registered").
				Int64("node_id", nodeID).
				Str("host", host).
				Str("ip", addr).
				Int("ssh_port", *sshPort).
				Msg("worker registered")
			return
		}
		logger.Warn().Err(err).
			Str("event", "register_retry").
			Dur("backoff", backoff).
			Msg("registration failed, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			logger.Fatal().Msg("interrupted before registration succeeded")
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func register(ctx context.Context, baseURL, hostname, ip string, sshPort int) (int64, error) {
	body, err := json.Marshal(map[string]any{
		"hostname": hostname,
		"ip":       ip,
		"ssh_port": sshPort,
	})
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/api/workers/register", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var out struct {
		NodeID int64 `json:"node_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.NodeID, nil
}

// detectIP finds the address of the default outbound interface. No packet is
// sent; the dial only resolves routing.
func detectIP() (string, error) {
	conn, err := net.Dial("udp", "198.51.100.1:9")
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close() }()
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address %v", conn.LocalAddr())
	}
	return local.IP.String(), nil
}
