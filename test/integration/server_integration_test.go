//go:build integration
// +build integration

package integration

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oxenhq/oxen-core/internal/server"
)

// TestServerIntegration verifies oxen-server starts, creates and lists
// repositories over HTTP, serves the progress WebSocket, and enforces its
// health and validation behavior end to end. The rate-limiting subtest
// logs how many requests were rejected without asserting on it.
//
// Note: this test cannot run in parallel because the server binds a fixed port.
func TestServerIntegration(t *testing.T) {
	dataDir, err := os.MkdirTemp("", "oxen-server-integration-")
	if err != nil {
		t.Fatalf("failed to create data dir: %v", err)
	}
	defer os.RemoveAll(dataDir)

	srv := server.NewServer(dataDir, ":18080")
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer srv.Shutdown()

	time.Sleep(100 * time.Millisecond)

	select {
	case err := <-errCh:
		t.Fatalf("server failed to start: %v", err)
	default:
	}

	baseURL := "http://localhost:18080"

	t.Run("health endpoint", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("health check status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var health server.HealthStatus
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			t.Fatalf("failed to decode health response: %v", err)
		}
		if health.Status != "ok" {
			t.Errorf("health status = %q, want %q", health.Status, "ok")
		}
	})

	t.Run("create and list repo", func(t *testing.T) {
		body := strings.NewReader(`{"namespace":"acme","name":"dataset"}`)
		resp, err := http.Post(baseURL+"/api/repos", "application/json", body)
		if err != nil {
			t.Fatalf("create repo failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			t.Errorf("create repo status = %d, want 200/201", resp.StatusCode)
		}

		listResp, err := http.Get(baseURL + "/api/repos")
		if err != nil {
			t.Fatalf("list repos failed: %v", err)
		}
		defer listResp.Body.Close()

		var repos []struct {
			Namespace string `json:"namespace"`
			Name      string `json:"name"`
		}
		if err := json.NewDecoder(listResp.Body).Decode(&repos); err != nil {
			t.Fatalf("failed to decode repo list: %v", err)
		}

		found := false
		for _, r := range repos {
			if r.Namespace == "acme" && r.Name == "dataset" {
				found = true
			}
		}
		if !found {
			t.Errorf("created repo acme/dataset not present in list: %+v", repos)
		}
	})

	t.Run("duplicate create rejected", func(t *testing.T) {
		body := strings.NewReader(`{"namespace":"acme","name":"dataset"}`)
		resp, err := http.Post(baseURL+"/api/repos", "application/json", body)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 400 {
			t.Errorf("duplicate create status = %d, want 4xx", resp.StatusCode)
		}
	})

	t.Run("invalid namespace rejected", func(t *testing.T) {
		body := strings.NewReader(`{"namespace":"../escape","name":"dataset"}`)
		resp, err := http.Post(baseURL+"/api/repos", "application/json", body)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("websocket progress feed", func(t *testing.T) {
		wsURL := "ws://localhost:18080/repos/acme/dataset/ws"

		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("websocket dial failed: %v (status: %v)", err, resp)
		}
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			t.Errorf("failed to send ping: %v", err)
		}
	})

	t.Run("unknown repo 404s", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/repos/acme/does-not-exist/info")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("rate limiting", func(t *testing.T) {
		time.Sleep(time.Second)
		client := &http.Client{Timeout: 2 * time.Second}

		var successCount, rateLimitedCount int
		for i := 0; i < 200; i++ {
			resp, err := client.Get(baseURL + "/api/repos")
			if err != nil {
				t.Fatalf("request %d failed: %v", i, err)
			}
			resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusOK:
				successCount++
			case http.StatusTooManyRequests:
				rateLimitedCount++
			}
		}

		if rateLimitedCount == 0 {
			t.Log("warning: no requests were rate limited (may indicate rate limiting is disabled)")
		}
		t.Logf("requests: %d successful, %d rate limited", successCount, rateLimitedCount)
	})
}

// TestServerShutdown verifies graceful shutdown works correctly.
// Skipped because it would bind the same fixed port as TestServerIntegration,
// whose deferred srv.Shutdown() already exercises shutdown.
func TestServerShutdown(t *testing.T) {
	t.Skip("shutdown is exercised by TestServerIntegration's deferred srv.Shutdown()")
}
