package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/factorygrid/pkg/cache"
	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/observability"
	"github.com/matzehuels/factorygrid/pkg/pipeline"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	c.AddItem("iron-plate", 100)
	c.AddItem("gear", 100)
	c.AddItem("belt", 100)
	for _, r := range []*catalog.Recipe{
		{
			Name: "gear", Category: "crafting", Energy: 0.5,
			Ingredients: catalog.List[catalog.Ingredient]{{Type: "item", Name: "iron-plate", Amount: 2}},
			MainProduct: &catalog.Product{Type: "item", Name: "gear", Amount: 1},
		},
		{
			Name: "belt", Category: "crafting", Energy: 0.5,
			Ingredients: catalog.List[catalog.Ingredient]{
				{Type: "item", Name: "gear", Amount: 1},
				{Type: "item", Name: "iron-plate", Amount: 1},
			},
			MainProduct: &catalog.Product{Type: "item", Name: "belt", Amount: 2},
		},
	} {
		if err := c.AddRecipe(r); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(Config{
		Catalog:      testCatalog(t),
		CatalogHash:  "test",
		Runner:       pipeline.NewRunner(fc, nil, nil),
		MaxTimeLimit: 10 * time.Second,
		MaxUnits:     10,
	})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[healthResponse](t, rec)
	if got.Status != "ok" || got.Recipes != 2 || got.Items != 3 {
		t.Errorf("health = %+v", got)
	}
}

func TestResolve(t *testing.T) {
	s := newTestServer(t)
	body := `{"requests": [{"recipe": "belt", "rate": 1}]}`

	rec := do(t, s, http.MethodPost, "/v1/resolve", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Cache") != "miss" {
		t.Errorf("X-Cache = %q, want miss", rec.Header().Get("X-Cache"))
	}
	bom := decode[BOM](t, rec)
	if len(bom.Recipes) != 2 || bom.TotalUnits != 2 {
		t.Errorf("bom = %+v", bom)
	}
	if len(bom.Items) != 1 || bom.Items[0].Item != "iron-plate" || bom.Items[0].Rate != 1.5 {
		t.Errorf("items = %+v", bom.Items)
	}

	rec = do(t, s, http.MethodPost, "/v1/resolve", body)
	if rec.Header().Get("X-Cache") != "hit" {
		t.Errorf("second X-Cache = %q, want hit", rec.Header().Get("X-Cache"))
	}
	if cached := decode[BOM](t, rec); cached.TotalUnits != bom.TotalUnits {
		t.Errorf("cached bom = %+v", cached)
	}

	// other categories are a different cache entry
	rec = do(t, s, http.MethodPost, "/v1/resolve", `{"requests": [{"recipe": "belt", "rate": 1}], "categories": ["smelting"]}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("filtered resolve status = %d, want 404", rec.Code)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown recipe", http.MethodPost, "/v1/resolve", `{"requests": [{"recipe": "rocket", "rate": 1}]}`, 404, "RECIPE_NOT_FOUND"},
		{"no requests", http.MethodPost, "/v1/resolve", `{"requests": []}`, 400, "INVALID_INPUT"},
		{"bad json", http.MethodPost, "/v1/resolve", `{"requests":`, 400, "INVALID_INPUT"},
		{"unknown field", http.MethodPost, "/v1/plan", `{"recipes": []}`, 400, "INVALID_INPUT"},
		{"bad time limit", http.MethodPost, "/v1/plan", `{"requests": [{"recipe": "belt", "rate": 1}], "time_limit": "soon"}`, 400, "INVALID_INPUT"},
		{"too many units", http.MethodPost, "/v1/plan", `{"requests": [{"recipe": "belt", "rate": 500}]}`, 400, "INVALID_INPUT"},
		{"infeasible", http.MethodPost, "/v1/plan", `{"requests": [{"recipe": "belt", "rate": 1}], "bounds": {"lx": 1, "ux": 1, "ly": 1, "uy": 1}}`, 422, "INFEASIBLE"},
		{"no route", http.MethodGet, "/v2/plan", "", 404, "NOT_FOUND"},
		{"wrong method", http.MethodGet, "/v1/plan", "", 405, "METHOD_NOT_ALLOWED"},
	}
	s := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			if got := decode[errorPayload](t, rec); got.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Error.Code, tt.code)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	s := newTestServer(t)
	body := `{
		"requests": [{"recipe": "belt", "rate": 1}],
		"sources": [{"item": "iron-plate", "at": {"x": 0, "y": 0}}],
		"label": "api"
	}`

	rec := do(t, s, http.MethodPost, "/v1/plan", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	got := decode[planResponse](t, rec)
	if got.Status != "OPTIMAL" {
		t.Errorf("status = %s", got.Status)
	}
	if got.Blueprint == "" || got.Blueprint[0] != '0' {
		t.Errorf("blueprint = %q", got.Blueprint)
	}
	if got.Layout == nil || len(got.Layout.Units) != 2 {
		t.Fatalf("layout = %+v", got.Layout)
	}
	if got.Stats.Units != 2 || got.Stats.Edges != 3 {
		t.Errorf("stats = %+v", got.Stats)
	}
	if got.Cache.HintHit {
		t.Error("first plan should not hit the hint cache")
	}

	rec = do(t, s, http.MethodPost, "/v1/plan", body)
	if again := decode[planResponse](t, rec); !again.Cache.HintHit || again.Objective != got.Objective {
		t.Errorf("second plan = %+v", again.Cache)
	}
}

func TestPlanOptionsCapsTimeLimit(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 10 * time.Second},
		{"2s", 2 * time.Second},
		{"1h", 10 * time.Second},
	}
	for _, tt := range tests {
		opts, err := s.planOptions(planRequest{TimeLimit: tt.in})
		if err != nil {
			t.Fatalf("planOptions(%q): %v", tt.in, err)
		}
		if opts.TimeLimit != tt.want {
			t.Errorf("time limit for %q = %v, want %v", tt.in, opts.TimeLimit, tt.want)
		}
		if !opts.NoIO {
			t.Error("API plans must not write run directories")
		}
		if opts.MaxUnits != 10 {
			t.Errorf("max units = %d, want server cap 10", opts.MaxUnits)
		}
	}
}

type recordingHooks struct {
	mu        sync.Mutex
	responses []string
	statuses  []int
}

func (h *recordingHooks) OnRequest(context.Context, string, string) {}

func (h *recordingHooks) OnResponse(_ context.Context, method, route string, status int, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses = append(h.responses, method+" "+route)
	h.statuses = append(h.statuses, status)
}

func TestHTTPHooks(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetHTTPHooks(hooks)
	defer observability.Reset()

	s := newTestServer(t)
	do(t, s, http.MethodGet, "/healthz", "")
	do(t, s, http.MethodPost, "/v1/resolve", `{"requests": [{"recipe": "rocket", "rate": 1}]}`)

	want := []string{"GET /healthz", "POST /v1/resolve"}
	if len(hooks.responses) != len(want) {
		t.Fatalf("responses = %v", hooks.responses)
	}
	for i := range want {
		if hooks.responses[i] != want[i] {
			t.Errorf("response %d = %q, want %q", i, hooks.responses[i], want[i])
		}
	}
	if hooks.statuses[0] != 200 || hooks.statuses[1] != 404 {
		t.Errorf("statuses = %v", hooks.statuses)
	}
}
