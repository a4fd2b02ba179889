//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running
// haveibeendrained server.
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// Environment:
//
//	HIBD_TEST_URL      server base URL (default http://localhost:8080)
//	HIBD_TEST_API_KEY  sent as X-API-Key when set
//	HIBD_TEST_WALLET   a wallet with on-chain history; analysis tests skip without it
//
// Report preparation needs the server to have a program authority
// configured and is skipped when it answers 503.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
	APIKey  string
	Wallet  string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("HIBD_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL: baseURL,
		APIKey:  os.Getenv("HIBD_TEST_API_KEY"),
		Wallet:  os.Getenv("HIBD_TEST_WALLET"),
	}
}

type analysisResponse struct {
	ID      string `json:"id"`
	Wallet  string `json:"wallet"`
	Phase   string `json:"phase"`
	Partial bool   `json:"partial"`
	Report  struct {
		OverallRisk      int    `json:"overallRisk"`
		Severity         string `json:"severity"`
		WalletAddress    string `json:"walletAddress"`
		TransactionCount int    `json:"transactionCount"`
		Detections       []struct {
			Type     string `json:"type"`
			Severity string `json:"severity"`
		} `json:"detections"`
		Recommendations []string `json:"recommendations"`
	} `json:"report"`
}

type reportResponse struct {
	IntentID    string `json:"intentId"`
	Instruction struct {
		ProgramID string `json:"programId"`
		Accounts  []struct {
			Pubkey string `json:"pubkey"`
		} `json:"accounts"`
		Data     string  `json:"data"`
		PDA      string  `json:"pda"`
		Lamports *uint64 `json:"lamports"`
	} `json:"instruction"`
}

type alertResponse struct {
	ID      string `json:"id"`
	Wallet  string `json:"wallet"`
	Email   string `json:"email"`
	Policy  string `json:"policy"`
	Enabled bool   `json:"enabled"`
}

// do sends a request and returns the status and raw body.
func do(t *testing.T, config TestConfig, method, path string, body any) (int, http.Header, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if config.APIKey != "" {
		req.Header.Set("X-API-Key", config.APIKey)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, resp.Header, respBody
}

func decode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, body)
	}
}

func randomAddress() string {
	return solana.NewWallet().PublicKey().String()
}

func TestHealthAndReadiness(t *testing.T) {
	config := getTestConfig()

	status, _, body := do(t, config, http.MethodGet, "/health", nil)
	if status != http.StatusOK {
		t.Fatalf("health: expected 200, got %d: %s", status, body)
	}
	var health map[string]any
	decode(t, body, &health)
	if health["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", health["status"])
	}

	status, _, body = do(t, config, http.MethodGet, "/ready", nil)
	if status != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d: %s", status, body)
	}
}

func TestInvalidWalletAddress_BadRequest(t *testing.T) {
	config := getTestConfig()

	status, _, body := do(t, config, http.MethodGet, "/api/v1/wallets/not-a-wallet/analysis", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", status, body)
	}
}

func TestWalletAnalysis_FreshThenCached(t *testing.T) {
	config := getTestConfig()
	if config.Wallet == "" {
		t.Skip("HIBD_TEST_WALLET not set")
	}

	status, headers, body := do(t, config, http.MethodGet, "/api/v1/wallets/"+config.Wallet+"/analysis?refresh=true", nil)
	if status == http.StatusServiceUnavailable {
		t.Skip("server has no RPC endpoint configured")
	}
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if headers.Get("X-Cache") != "MISS" {
		t.Errorf("expected X-Cache MISS on refresh, got %q", headers.Get("X-Cache"))
	}

	var first analysisResponse
	decode(t, body, &first)
	if first.ID == "" {
		t.Error("expected analysis id")
	}
	if first.Report.WalletAddress != config.Wallet {
		t.Errorf("expected wallet %s, got %s", config.Wallet, first.Report.WalletAddress)
	}
	if first.Report.OverallRisk < 0 || first.Report.OverallRisk > 100 {
		t.Errorf("overall risk out of range: %d", first.Report.OverallRisk)
	}
	if len(first.Report.Recommendations) == 0 {
		t.Error("expected recommendations")
	}
	t.Logf("severity=%s risk=%d txs=%d detections=%d partial=%v",
		first.Report.Severity, first.Report.OverallRisk, first.Report.TransactionCount,
		len(first.Report.Detections), first.Partial)

	status, _, body = do(t, config, http.MethodGet, "/api/v1/analyses/"+first.ID, nil)
	if status != http.StatusOK {
		t.Fatalf("stored analysis: expected 200, got %d: %s", status, body)
	}

	if first.Partial {
		return
	}
	status, headers, body = do(t, config, http.MethodGet, "/api/v1/wallets/"+config.Wallet+"/analysis", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if headers.Get("X-Cache") != "HIT" {
		t.Errorf("expected X-Cache HIT, got %q", headers.Get("X-Cache"))
	}
	var second analysisResponse
	decode(t, body, &second)
	if second.ID != first.ID {
		t.Errorf("expected cached analysis %s, got %s", first.ID, second.ID)
	}
}

func TestUnknownDrainer_NotFound(t *testing.T) {
	config := getTestConfig()

	status, _, body := do(t, config, http.MethodGet, "/api/v1/drainers/"+randomAddress(), nil)
	if status == http.StatusServiceUnavailable {
		t.Skip("server has no RPC endpoint configured")
	}
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", status, body)
	}
}

func TestReportInstruction(t *testing.T) {
	config := getTestConfig()
	drainer, reporter := randomAddress(), randomAddress()

	status, _, body := do(t, config, http.MethodPost, "/api/v1/reports", map[string]any{
		"drainerAddress":  drainer,
		"reporterAddress": reporter,
		"amountStolen":    "2.5",
	})
	if status == http.StatusServiceUnavailable {
		t.Skip("server has no program authority configured")
	}
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}

	var resp reportResponse
	decode(t, body, &resp)
	if resp.IntentID == "" {
		t.Error("expected intent id")
	}
	if resp.Instruction.Lamports == nil || *resp.Instruction.Lamports != 2_500_000_000 {
		t.Errorf("expected 2500000000 lamports, got %v", resp.Instruction.Lamports)
	}
	if len(resp.Instruction.Accounts) < 2 || resp.Instruction.Accounts[1].Pubkey != reporter {
		t.Errorf("expected reporter as second account, got %+v", resp.Instruction.Accounts)
	}

	t.Run("SelfReportRejected", func(t *testing.T) {
		status, _, body := do(t, config, http.MethodPost, "/api/v1/reports", map[string]any{
			"drainerAddress":  drainer,
			"reporterAddress": drainer,
		})
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", status, body)
		}
	})
}

func TestAlertSubscriptionLifecycle(t *testing.T) {
	config := getTestConfig()
	wallet := randomAddress()

	status, _, body := do(t, config, http.MethodPost, "/api/v1/alerts", map[string]any{
		"wallet": wallet,
		"email":  "integration@example.com",
		"policy": `severity in ["AT_RISK", "DRAINED"]`,
	})
	if status != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", status, body)
	}
	var created alertResponse
	decode(t, body, &created)
	if created.ID == "" || !created.Enabled {
		t.Fatalf("unexpected subscription: %+v", created)
	}

	status, _, body = do(t, config, http.MethodGet, "/api/v1/alerts?wallet="+wallet, nil)
	if status != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", status, body)
	}
	var list struct {
		Alerts []alertResponse `json:"alerts"`
		Count  int             `json:"count"`
	}
	decode(t, body, &list)
	if list.Count != 1 || list.Alerts[0].ID != created.ID {
		t.Errorf("expected the created subscription, got %+v", list)
	}

	status, _, body = do(t, config, http.MethodDelete, "/api/v1/alerts/"+created.ID, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d: %s", status, body)
	}

	status, _, _ = do(t, config, http.MethodDelete, "/api/v1/alerts/"+created.ID, nil)
	if status != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", status)
	}

	t.Run("InvalidPolicyRejected", func(t *testing.T) {
		status, _, body := do(t, config, http.MethodPost, "/api/v1/alerts", map[string]any{
			"wallet": wallet,
			"email":  "integration@example.com",
			"policy": "overall_risk >=",
		})
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", status, body)
		}
	})
}
