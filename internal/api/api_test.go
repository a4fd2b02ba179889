package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/alerts"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/analysis"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/bus"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/cache"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/detector"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/provider"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/ratelimit"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/registry"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/repository"
	"github.com/gagliardetto/solana-go"
)

var (
	cleanWallet   = solana.NewWallet().PublicKey().String()
	drainedWallet = solana.NewWallet().PublicKey().String()
	knownDrainer  = solana.NewWallet().PublicKey().String()
	authority     = solana.NewWallet().PublicKey().String()
)

type entryMap map[string]*domain.DrainerRegistryEntry

func (m entryMap) GetEntry(ctx context.Context, address string) (*domain.DrainerRegistryEntry, error) {
	if e, ok := m[address]; ok {
		return e, nil
	}
	return nil, domain.ErrDrainerNotFound
}

type recordingInvalidator struct {
	mu        sync.Mutex
	addresses []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addresses = append(r.addresses, address)
	return nil
}

type testEnv struct {
	server      *Server
	repo        domain.Repository
	bus         *bus.ChannelBus
	provider    *provider.StaticProvider
	invalidator *recordingInvalidator
}

func setAuthorityTx(wallet string) domain.TransactionRecord {
	tokenAcc := solana.NewWallet().PublicKey().String()
	return domain.TransactionRecord{
		Signature: "sig-set-authority",
		Instructions: []domain.Instruction{{
			Program: "spl-token",
			Type:    "setAuthority",
			Info: map[string]any{
				"account":       tokenAcc,
				"authorityType": "accountOwner",
				"newAuthority":  knownDrainer,
			},
		}},
		Accounts: []domain.AccountRole{
			{Address: wallet, IsSigner: true, IsWritable: true},
			{Address: tokenAcc, IsWritable: true},
		},
	}
}

// newTestEnv creates a server over SQLite, the LRU cache and the channel bus.
func newTestEnv(t *testing.T, cfg domain.ServerConfig, limiter bool) *testEnv {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	sp := provider.NewStaticProvider()
	sp.Set(cleanWallet)
	sp.Set(drainedWallet, setAuthorityTx(drainedWallet))

	oracle := detector.OracleFunc(func(ctx context.Context, address string) (bool, error) {
		return address == knownDrainer, nil
	})

	program, err := registry.NewProgram(domain.DefaultRegistryProgramID, authority)
	if err != nil {
		t.Fatalf("failed to create program: %v", err)
	}

	policies, err := alerts.NewEngine()
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	deps := Deps{
		Analyzer: analysis.New(sp, oracle, analysis.Config{Timeout: 5 * time.Second}),
		Registry: entryMap{knownDrainer: {DrainerAddress: knownDrainer, ReportCount: 3}},
		Program:  program,
		Repo:     repo,
		Cache:    lru,
		Bus:      eventBus,
		Policies: policies,
		Version:  "test-v1",
	}
	inv := &recordingInvalidator{}
	deps.Oracle = inv

	if limiter {
		l, err := ratelimit.New(lru, domain.RateLimitConfig{Window: time.Minute, AnonymousLimit: 2})
		if err != nil {
			t.Fatalf("failed to create limiter: %v", err)
		}
		deps.Limiter = l
	}

	if cfg.ReportCacheTTL == 0 {
		cfg.ReportCacheTTL = time.Minute
	}

	return &testEnv{
		server:      NewServer(cfg, deps),
		repo:        repo,
		bus:         eventBus,
		provider:    sp,
		invalidator: inv,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)
	return rr
}

func TestAnalyzeWalletEndpoint(t *testing.T) {
	env := newTestEnv(t, domain.ServerConfig{}, false)

	completed := make(chan domain.AnalysisCompletedEvent, 10)
	_, err := env.bus.Subscribe(context.Background(), domain.TopicAnalysisCompleted, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.AnalysisCompletedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		completed <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	t.Run("InvalidAddress", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/wallets/not-an-address/analysis", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("CleanWallet", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/wallets/"+cleanWallet+"/analysis", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if got := rr.Header().Get("X-Cache"); got != "MISS" {
			t.Errorf("expected X-Cache MISS, got %q", got)
		}

		var res domain.Analysis
		if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if res.ID == "" {
			t.Error("expected analysis id")
		}
		if res.Report == nil || res.Report.Severity != domain.RiskSafe {
			t.Fatalf("expected SAFE report, got %+v", res.Report)
		}
		if res.Report.OverallRisk != 0 {
			t.Errorf("expected overall risk 0, got %d", res.Report.OverallRisk)
		}

		select {
		case ev := <-completed:
			if ev.AnalysisID != res.ID {
				t.Errorf("expected event for %s, got %s", res.ID, ev.AnalysisID)
			}
		case <-time.After(2 * time.Second):
			t.Error("expected analysis.completed event")
		}

		stored := env.do(t, http.MethodGet, "/api/v1/analyses/"+res.ID, nil)
		if stored.Code != http.StatusOK {
			t.Errorf("expected stored analysis, got status %d", stored.Code)
		}
	})

	t.Run("CacheHit", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/wallets/"+cleanWallet+"/analysis", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if got := rr.Header().Get("X-Cache"); got != "HIT" {
			t.Errorf("expected X-Cache HIT, got %q", got)
		}

		refreshed := env.do(t, http.MethodGet, "/api/v1/wallets/"+cleanWallet+"/analysis?refresh=true", nil)
		if got := refreshed.Header().Get("X-Cache"); got != "MISS" {
			t.Errorf("expected refresh to bypass cache, got %q", got)
		}
	})

	t.Run("DrainedWallet", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/wallets/"+drainedWallet+"/analysis", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var res domain.Analysis
		json.Unmarshal(rr.Body.Bytes(), &res)
		if res.Report == nil || res.Report.Severity == domain.RiskSafe {
			t.Fatalf("expected a non-SAFE report, got %+v", res.Report)
		}
		if len(res.Report.Detections) == 0 || res.Report.Detections[0].Type != domain.DetectionSetAuthority {
			t.Errorf("expected SET_AUTHORITY detection, got %+v", res.Report.Detections)
		}
	})

	t.Run("ListHistory", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/wallets/"+cleanWallet+"/analyses", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 2 {
			t.Errorf("expected 2 stored analyses, got %d", resp.Count)
		}
	})

	t.Run("UnknownAnalysis", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/analyses/does-not-exist", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestAnalysisEventCarriesWarnings(t *testing.T) {
	env := newTestEnv(t, domain.ServerConfig{}, false)
	wallet := solana.NewWallet().PublicKey().String()
	env.provider.Fail(wallet, errors.New("rpc unreachable"))

	completed := make(chan domain.AnalysisCompletedEvent, 1)
	_, err := env.bus.Subscribe(context.Background(), domain.TopicAnalysisCompleted, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.AnalysisCompletedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		completed <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	rr := env.do(t, http.MethodGet, "/api/v1/wallets/"+wallet+"/analysis", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	select {
	case ev := <-completed:
		found := false
		for _, w := range ev.Warnings {
			if w == domain.WarningProviderUnavailable {
				found = true
			}
		}
		if !found {
			t.Errorf("expected %s in event warnings, got %v", domain.WarningProviderUnavailable, ev.Warnings)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected analysis.completed event")
	}
}

func TestAnalyzeWalletMisconfigured(t *testing.T) {
	env := newTestEnv(t, domain.ServerConfig{}, false)
	env.provider.Fail(cleanWallet, domain.ErrProviderMisconfigured)

	rr := env.do(t, http.MethodGet, "/api/v1/wallets/"+cleanWallet+"/analysis", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}
}

func TestDrainerEndpoint(t *testing.T) {
	env := newTestEnv(t, domain.ServerConfig{}, false)

	t.Run("Known", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/drainers/"+knownDrainer, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var entry domain.DrainerRegistryEntry
		json.Unmarshal(rr.Body.Bytes(), &entry)
		if entry.ReportCount != 3 {
			t.Errorf("expected report count 3, got %d", entry.ReportCount)
		}
	})

	t.Run("NotReported", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/drainers/"+cleanWallet, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("InvalidAddress", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/drainers/0OIl", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestReportEndpoint(t *testing.T) {
	env := newTestEnv(t, domain.ServerConfig{}, false)
	drainer := solana.NewWallet().PublicKey().String()
	reporter := solana.NewWallet().PublicKey().String()

	prepared := make(chan domain.ReportPreparedEvent, 10)
	_, err := env.bus.Subscribe(context.Background(), domain.TopicReportPrepared, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.ReportPreparedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		prepared <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	t.Run("PreparesInstruction", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/v1/reports",
			`{"drainerAddress":"`+drainer+`","reporterAddress":"`+reporter+`","amountStolen":"1.5"}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp ReportResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.IntentID == "" {
			t.Error("expected intent id")
		}
		ix := resp.Instruction
		if ix.ProgramID != domain.DefaultRegistryProgramID {
			t.Errorf("expected program %s, got %s", domain.DefaultRegistryProgramID, ix.ProgramID)
		}
		if ix.Lamports == nil || *ix.Lamports != 1_500_000_000 {
			t.Errorf("expected 1500000000 lamports, got %v", ix.Lamports)
		}
		if len(ix.Accounts) != 5 || !ix.Accounts[1].IsSigner || ix.Accounts[1].Pubkey != reporter {
			t.Errorf("expected reporter as the only signer, got %+v", ix.Accounts)
		}

		intents, err := env.repo.ListReportIntents(context.Background(), drainer)
		if err != nil {
			t.Fatalf("ListReportIntents failed: %v", err)
		}
		if len(intents) != 1 || intents[0].PDA != ix.PDA {
			t.Errorf("expected stored intent for %s, got %+v", ix.PDA, intents)
		}

		env.invalidator.mu.Lock()
		invalidated := append([]string(nil), env.invalidator.addresses...)
		env.invalidator.mu.Unlock()
		if len(invalidated) != 1 || invalidated[0] != drainer {
			t.Errorf("expected cache invalidation for %s, got %v", drainer, invalidated)
		}

		select {
		case ev := <-prepared:
			if ev.IntentID != resp.IntentID || ev.PDA != ix.PDA {
				t.Errorf("unexpected report event: %+v", ev)
			}
			if ev.Lamports == nil || *ev.Lamports != 1_500_000_000 {
				t.Errorf("expected 1500000000 lamports in event, got %v", ev.Lamports)
			}
		case <-time.After(2 * time.Second):
			t.Error("expected report.prepared event")
		}
	})

	t.Run("WithoutAmount", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/v1/reports", ReportRequest{
			DrainerAddress:  drainer,
			ReporterAddress: reporter,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", rr.Code)
		}
		var resp ReportResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Instruction.Lamports != nil {
			t.Errorf("expected no lamports, got %d", *resp.Instruction.Lamports)
		}
	})

	t.Run("SelfReport", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/v1/reports", ReportRequest{
			DrainerAddress:  reporter,
			ReporterAddress: reporter,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/v1/reports",
			`{"drainerAddress":"`+drainer+`","reporterAddress":"`+reporter+`","amountStolen":-2}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/v1/reports", "not-json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestAlertEndpoints(t *testing.T) {
	env := newTestEnv(t, domain.ServerConfig{}, false)

	var created domain.AlertSubscription

	t.Run("Create", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/v1/alerts", AlertRequest{
			Wallet: cleanWallet,
			Email:  "owner@example.com",
			Policy: `overall_risk >= 50`,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		json.Unmarshal(rr.Body.Bytes(), &created)
		if created.ID == "" || !created.Enabled {
			t.Errorf("unexpected subscription: %+v", created)
		}
	})

	t.Run("InvalidPolicy", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/v1/alerts", AlertRequest{
			Wallet: cleanWallet,
			Email:  "owner@example.com",
			Policy: `overall_risk + 1`,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidEmail", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/v1/alerts", AlertRequest{
			Wallet: cleanWallet,
			Email:  "nobody",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/alerts?wallet="+cleanWallet, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 alert, got %d", resp.Count)
		}

		missing := env.do(t, http.MethodGet, "/api/v1/alerts", nil)
		if missing.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 without wallet, got %d", missing.Code)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rr := env.do(t, http.MethodDelete, "/api/v1/alerts/"+created.ID, nil)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d", rr.Code)
		}

		again := env.do(t, http.MethodDelete, "/api/v1/alerts/"+created.ID, nil)
		if again.Code != http.StatusNotFound {
			t.Errorf("expected status 404 on second delete, got %d", again.Code)
		}
	})
}

func TestAPIKeys(t *testing.T) {
	env := newTestEnv(t, domain.ServerConfig{RequireAPIKey: true}, false)

	err := env.repo.SaveAPIKey(context.Background(), &domain.APIKey{
		ID:                "key-1",
		Name:              "integration",
		KeyHash:           HashAPIKey("secret-key"),
		Tier:              ratelimit.TierKeyed,
		RequestsPerMinute: 100,
		Enabled:           true,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SaveAPIKey failed: %v", err)
	}

	path := "/api/v1/drainers/" + knownDrainer

	t.Run("MissingKey", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, path, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rr.Code)
		}
	})

	t.Run("UnknownKey", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, path, nil, APIKeyHeader, "wrong")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rr.Code)
		}
	})

	t.Run("ValidKey", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, path, nil, APIKeyHeader, "secret-key")
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("HealthIsOpen", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/health", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestRateLimiting(t *testing.T) {
	env := newTestEnv(t, domain.ServerConfig{}, true)
	path := "/api/v1/drainers/" + knownDrainer

	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodGet, path, nil); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i+1, rr.Code)
		}
	}

	rr := env.do(t, http.MethodGet, path, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, domain.ServerConfig{}, false)

	t.Run("HealthCheck", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/health", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Status     string            `json:"status"`
			Version    string            `json:"version"`
			Components map[string]string `json:"components"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Status != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp.Status)
		}
		if resp.Version != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp.Version)
		}
		if resp.Components["repository"] != "ok" {
			t.Errorf("expected repository ok, got %q", resp.Components["repository"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/ready", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedRequestID = GetRequestID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})

	t.Run("CORSRestrictsOrigins", func(t *testing.T) {
		handler := CORSMiddleware([]string{"https://app.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://app.example")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Errorf("expected preflight 204, got %d", rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
			t.Errorf("expected allowed origin echoed, got %q", got)
		}

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no allow-origin for unknown origin, got %q", got)
		}
	})

	t.Run("HashAPIKey", func(t *testing.T) {
		h := HashAPIKey("abc")
		if len(h) != 64 {
			t.Errorf("expected 64 hex chars, got %d", len(h))
		}
		if h != HashAPIKey("abc") || h == HashAPIKey("abd") {
			t.Error("expected stable, distinct hashes")
		}
	})
}
