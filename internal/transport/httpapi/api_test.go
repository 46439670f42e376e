package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"neighborhood.land/internal/catalogs"
	"neighborhood.land/internal/ledger"
	"neighborhood.land/internal/mapdata"
	"neighborhood.land/internal/persistence/sqlite"
	"neighborhood.land/internal/protocol"
)

func newTestServer(t *testing.T) (*httptest.Server, *ledger.Store) {
	t.Helper()
	dir := t.TempDir()

	catalogFiles := map[string]string{
		"house_types.json":  `[{"id":"type1","name":"Cottage"},{"id":"type2","name":"Townhouse"}]`,
		"house_colors.json": `[{"id":"red","hex":"#e74c3c"},{"id":"blue","hex":"#3498db"}]`,
		"plot_types.json":   `[{"id":"plot-standard","name":"Standard","color":"#7f8c8d","default_width":2,"default_height":2,"base_price":100}]`,
	}
	for name, raw := range catalogFiles {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(raw), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	cats, err := catalogs.Load(dir)
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	db, err := sqlite.Open(filepath.Join(dir, "community.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := log.New(os.Stderr, "[test] ", log.LstdFlags)
	store := ledger.NewStore(db, cats, logger)

	ctx := context.Background()
	_, err = store.ImportMap(ctx, mapdata.Document{
		ID:   "map-1",
		Name: "Commons",
		Items: []mapdata.Item{
			{ID: "plot-a", X: 0, Y: 0, Width: 2, Height: 2, Category: "plot-standard", Properties: mapdata.Properties{Name: "Plot A", Price: 100}},
			{ID: "plot-b", X: 2, Y: 0, Width: 2, Height: 2, Category: "plot-standard", Properties: mapdata.Properties{Name: "Plot B", Price: 100}},
			{ID: "plot-c", X: 9, Y: 9, Width: 1, Height: 1, Category: "plot-standard", Properties: mapdata.Properties{Name: "Plot C", Price: 100}},
		},
	})
	if err != nil {
		t.Fatalf("import map: %v", err)
	}
	for _, u := range []string{"user-1", "user-2"} {
		if _, err := store.CreateAccount(ctx, "acc-"+u, u, ""); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}

	mux := http.NewServeMux()
	NewServer(store, cats, logger).Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, store
}

func doJSON(t *testing.T, method, url, user string, body any) (*http.Response, protocol.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var env protocol.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func TestPurchaseFlow(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, env := doJSON(t, "POST", ts.URL+"/v1/plots/purchase", "user-1",
		protocol.PurchaseRequest{PlotID: "plot-a", HouseType: "type1", HouseColor: "red"})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("purchase: status=%d env=%+v", resp.StatusCode, env)
	}

	// Same plot again by another user: 409 with the plot-taken code.
	resp, env = doJSON(t, "POST", ts.URL+"/v1/plots/purchase", "user-2",
		protocol.PurchaseRequest{PlotID: "plot-a"})
	if resp.StatusCode != http.StatusConflict || env.Code != protocol.ErrPlotAlreadyOwned {
		t.Fatalf("conflict: status=%d code=%s", resp.StatusCode, env.Code)
	}

	// Second plot for the same user: 409 with the one-plot code.
	resp, env = doJSON(t, "POST", ts.URL+"/v1/plots/purchase", "user-1",
		protocol.PurchaseRequest{PlotID: "plot-b"})
	if resp.StatusCode != http.StatusConflict || env.Code != protocol.ErrAccountHasPlot {
		t.Fatalf("one-plot: status=%d code=%s", resp.StatusCode, env.Code)
	}

	// Unknown decoration: 400.
	resp, env = doJSON(t, "POST", ts.URL+"/v1/plots/purchase", "user-2",
		protocol.PurchaseRequest{PlotID: "plot-b", HouseType: "castle"})
	if resp.StatusCode != http.StatusBadRequest || env.Code != protocol.ErrBadRequest {
		t.Fatalf("bad decoration: status=%d code=%s", resp.StatusCode, env.Code)
	}

	// Missing identity header: 400.
	resp, _ = doJSON(t, "POST", ts.URL+"/v1/plots/purchase", "",
		protocol.PurchaseRequest{PlotID: "plot-b"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing identity: status=%d", resp.StatusCode)
	}
}

func TestAdjacentDegradesToEmpty(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, env := doJSON(t, "GET", ts.URL+"/v1/plots/plot-a/adjacent", "", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("adjacent: status=%d env=%+v", resp.StatusCode, env)
	}
	raw, _ := json.Marshal(env.Data)
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("data is not a list: %s", raw)
	}
	if len(list) != 1 {
		t.Fatalf("plot-a neighbors = %d, want 1", len(list))
	}

	// Unknown plot: still 200, success false, empty list in data.
	resp, env = doJSON(t, "GET", ts.URL+"/v1/plots/plot-missing/adjacent", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("missing plot adjacency status = %d, want 200", resp.StatusCode)
	}
	if env.Success || env.Code != protocol.ErrPlotNotFound || env.Error == "" {
		t.Fatalf("missing plot envelope: %+v", env)
	}
	raw, _ = json.Marshal(env.Data)
	list = nil
	if err := json.Unmarshal(raw, &list); err != nil || len(list) != 0 {
		t.Fatalf("degraded data should be an empty list, got %s", raw)
	}
}

func TestTransactionsEndpoint(t *testing.T) {
	ts, store := newTestServer(t)
	ctx := context.Background()

	if _, err := store.Purchase(ctx, "acc-user-1", "plot-a", ledger.DecorationChoice{}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := store.Sell(ctx, "acc-user-1", "plot-a"); err != nil {
		t.Fatalf("sell: %v", err)
	}

	resp, env := doJSON(t, "GET", ts.URL+"/v1/plots/plot-a/transactions", "", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("transactions: status=%d env=%+v", resp.StatusCode, env)
	}
	raw, _ := json.Marshal(env.Data)
	var recs []struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &recs); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(recs) != 2 || recs[0].Kind != "sale" || recs[1].Kind != "purchase" {
		t.Fatalf("records not newest-first: %+v", recs)
	}

	// A plot with no records, unknown ids included, reads as empty history.
	resp, env = doJSON(t, "GET", ts.URL+"/v1/plots/plot-missing/transactions", "", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("unknown plot: status=%d env=%+v", resp.StatusCode, env)
	}
	raw, _ = json.Marshal(env.Data)
	recs = recs[:0]
	if err := json.Unmarshal(raw, &recs); err != nil || len(recs) != 0 {
		t.Fatalf("unknown plot history not empty: %s (%v)", raw, err)
	}

	resp, _ = doJSON(t, "GET", ts.URL+"/v1/plots/plot-a/transactions?limit=bogus", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: status=%d", resp.StatusCode)
	}
}

func TestSellAndMe(t *testing.T) {
	ts, _ := newTestServer(t)

	if resp, _ := doJSON(t, "POST", ts.URL+"/v1/plots/purchase", "user-1",
		protocol.PurchaseRequest{PlotID: "plot-a"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("purchase failed: %d", resp.StatusCode)
	}

	resp, env := doJSON(t, "GET", ts.URL+"/v1/me", "user-1", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("me: status=%d env=%+v", resp.StatusCode, env)
	}
	raw, _ := json.Marshal(env.Data)
	var me struct {
		Plot *struct {
			ID string `json:"id"`
		} `json:"plot"`
	}
	if err := json.Unmarshal(raw, &me); err != nil || me.Plot == nil || me.Plot.ID != "plot-a" {
		t.Fatalf("me payload: %s (%v)", raw, err)
	}

	// Sell by someone else is a conflict; by the owner it succeeds.
	resp, env = doJSON(t, "POST", ts.URL+"/v1/plots/plot-a/sell", "user-2", nil)
	if resp.StatusCode != http.StatusConflict || env.Code != protocol.ErrNotOwner {
		t.Fatalf("foreign sell: status=%d code=%s", resp.StatusCode, env.Code)
	}
	resp, _ = doJSON(t, "POST", ts.URL+"/v1/plots/plot-a/sell", "user-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sell: status=%d", resp.StatusCode)
	}
}

func TestLikeStatsAndCatalogs(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, env := doJSON(t, "POST", ts.URL+"/v1/plots/plot-a/like", "user-1", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("like: status=%d env=%+v", resp.StatusCode, env)
	}

	resp, env = doJSON(t, "GET", ts.URL+"/v1/community/stats", "", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("stats: status=%d env=%+v", resp.StatusCode, env)
	}
	raw, _ := json.Marshal(env.Data)
	var st struct {
		TotalPlots int `json:"total_plots"`
		TotalLikes int `json:"total_likes"`
	}
	if err := json.Unmarshal(raw, &st); err != nil || st.TotalPlots != 3 || st.TotalLikes != 1 {
		t.Fatalf("stats payload: %s (%v)", raw, err)
	}

	resp, env = doJSON(t, "GET", ts.URL+"/v1/plots/plot-a/like", "user-1", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("like status: status=%d env=%+v", resp.StatusCode, env)
	}
	raw, _ = json.Marshal(env.Data)
	var ls struct {
		Liked      bool `json:"liked"`
		LikesCount int  `json:"likes_count"`
	}
	if err := json.Unmarshal(raw, &ls); err != nil || !ls.Liked || ls.LikesCount != 1 {
		t.Fatalf("like status payload: %s (%v)", raw, err)
	}

	resp, env = doJSON(t, "GET", ts.URL+"/v1/catalogs", "", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("catalogs: status=%d", resp.StatusCode)
	}
}

func TestActiveMapEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, env := doJSON(t, "GET", ts.URL+"/v1/maps/active", "", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("active map: status=%d env=%+v", resp.StatusCode, env)
	}
	raw, _ := json.Marshal(env.Data)
	var m struct {
		ID    string            `json:"id"`
		Plots []json.RawMessage `json:"plots"`
	}
	if err := json.Unmarshal(raw, &m); err != nil || m.ID != "map-1" || len(m.Plots) != 3 {
		t.Fatalf("active map payload: %s (%v)", raw, err)
	}
}

func TestRegisterIsIdempotentPerUser(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, env := doJSON(t, "POST", ts.URL+"/v1/accounts", "user-new",
		protocol.RegisterRequest{DisplayName: "Newcomer"})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("register: status=%d env=%+v", resp.StatusCode, env)
	}
	raw, _ := json.Marshal(env.Data)
	var first struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &first)

	_, env = doJSON(t, "POST", ts.URL+"/v1/accounts", "user-new", nil)
	raw, _ = json.Marshal(env.Data)
	var second struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &second)
	if first.ID == "" || first.ID != second.ID {
		t.Fatalf("re-register returned a different account: %q vs %q", first.ID, second.ID)
	}
}

func TestListAndAvailable(t *testing.T) {
	ts, _ := newTestServer(t)

	if resp, _ := doJSON(t, "POST", ts.URL+"/v1/plots/purchase", "user-1",
		protocol.PurchaseRequest{PlotID: "plot-a"}); resp.StatusCode != http.StatusOK {
		t.Fatal("setup purchase failed")
	}

	_, env := doJSON(t, "GET", ts.URL+"/v1/plots", "", nil)
	raw, _ := json.Marshal(env.Data)
	var all []json.RawMessage
	_ = json.Unmarshal(raw, &all)
	if len(all) != 3 {
		t.Fatalf("plots = %d, want 3", len(all))
	}

	_, env = doJSON(t, "GET", ts.URL+"/v1/plots/available", "", nil)
	raw, _ = json.Marshal(env.Data)
	var avail []struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &avail)
	if len(avail) != 2 {
		t.Fatalf("available = %d, want 2", len(avail))
	}
	for _, p := range avail {
		if p.ID == "plot-a" {
			t.Fatal("owned plot listed as available")
		}
	}
}
