package tags

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tenantdash/pkg/backend"
	"tenantdash/pkg/problems"
	"tenantdash/pkg/registry"
)

type tagClient struct {
	rows  []backend.TagMappingRow
	err   error
	gate  chan struct{}
	loads atomic.Int32
}

func (c *tagClient) Ping(ctx context.Context) error { return nil }
func (c *tagClient) Membership(ctx context.Context, tenantID, principalID string) (*backend.MembershipRow, error) {
	return nil, nil
}
func (c *tagClient) TagMappings(ctx context.Context, tenantID string) ([]backend.TagMappingRow, error) {
	c.loads.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.rows, nil
}
func (c *tagClient) Close() {}

type fakeConnector struct {
	mu       sync.Mutex
	clients  map[string]*tagClient
	err      error
	reported []string
}

func (f *fakeConnector) Resolve(ctx context.Context, key string) (*registry.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.clients[key]
	if !ok {
		return nil, problems.NotFound("resolve", key)
	}
	return &registry.Connection{TenantKey: key, Client: c}, nil
}

func (f *fakeConnector) ReportAuthFailure(key string, err error) bool {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return false
	}
	f.mu.Lock()
	f.reported = append(f.reported, key)
	f.mu.Unlock()
	return true
}

func siegRows() []backend.TagMappingRow {
	return []backend.TagMappingRow{
		{TenantID: "sieg", ExternalTag: "T2 - QUALIFICANDO", InternalStage: "Qualifying", DisplayLabel: "Qualificando", DisplayOrder: 2, Active: true},
		{TenantID: "sieg", ExternalTag: "T1 - NOVO", InternalStage: "novo_lead", DisplayLabel: "Novo lead", DisplayOrder: 1, Active: true},
		{TenantID: "sieg", ExternalTag: "T3 - QUALIFICADO", InternalStage: "qualified", DisplayLabel: "Qualificado", DisplayOrder: 5, Active: true},
		{TenantID: "sieg", ExternalTag: "T4 - RETORNO", InternalStage: "follow_up", DisplayLabel: "Retorno", DisplayOrder: 4, Active: true},
		{TenantID: "sieg", ExternalTag: "T2B - QUALIFICANDO", InternalStage: "qualifying", DisplayLabel: "Qualificando B", DisplayOrder: 6, Active: true},
		{TenantID: "sieg", ExternalTag: "OLD", InternalStage: "Disqualified", DisplayLabel: "Old", DisplayOrder: 0, Active: false},
	}
}

func newFixture() (*fakeConnector, *Resolver) {
	conn := &fakeConnector{clients: map[string]*tagClient{
		"sieg":  {rows: siegRows()},
		"empty": {},
	}}
	return conn, NewResolver(conn, Options{})
}

func TestScenarioLookups(t *testing.T) {
	_, r := newFixture()
	ctx := context.Background()
	if got := r.StageOf(ctx, "sieg", "t2 - qualificando"); got != StageQualifying {
		t.Fatalf("want Qualifying got %s", got)
	}
	if got := r.LabelOf(ctx, "sieg", "T2 - QUALIFICANDO"); got != "Qualificando" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := r.LabelOf(ctx, "sieg", "T9-unmapped"); got != "T9-unmapped" {
		t.Fatalf("unmapped label should be raw tag, got %q", got)
	}
	if got := r.StageOf(ctx, "sieg", "T1 - NOVO"); got != StageNewLead {
		t.Fatalf("alias stage not parsed: %s", got)
	}
}

func TestStageFallback(t *testing.T) {
	conn, r := newFixture()
	conn.clients["broken"] = &tagClient{err: errors.New("boom")}
	ctx := context.Background()
	cases := []struct{ tenant, tag string }{
		{"sieg", ""},
		{"sieg", "unknown-tag-xyz"},
		{"sieg", "OLD"},
		{"empty", "anything"},
		{"broken", "T2 - QUALIFICANDO"},
		{"nope", "anything"},
	}
	for _, tc := range cases {
		if got := r.StageOf(ctx, tc.tenant, tc.tag); got != StageNewLead {
			t.Fatalf("%s/%q: want NewLead got %s", tc.tenant, tc.tag, got)
		}
	}
}

func TestLookupsAreCached(t *testing.T) {
	conn, r := newFixture()
	ctx := context.Background()
	a := r.LabelOf(ctx, "sieg", "T4 - RETORNO")
	b := r.LabelOf(ctx, "sieg", "T4 - RETORNO")
	if a != b || a != "Retorno" {
		t.Fatalf("labels differ: %q %q", a, b)
	}
	r.StageOf(ctx, "SIEG", "x")
	r.StagesByOrder(ctx, "sieg")
	if n := conn.clients["sieg"].loads.Load(); n != 1 {
		t.Fatalf("expected one load, got %d", n)
	}
}

func TestConcurrentLoadsCoalesce(t *testing.T) {
	conn, r := newFixture()
	c := conn.clients["sieg"]
	c.gate = make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.LoadMappings(context.Background(), "sieg"); err != nil {
				t.Errorf("load: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(c.gate)
	wg.Wait()
	if n := c.loads.Load(); n != 1 {
		t.Fatalf("expected one load, got %d", n)
	}
}

func TestLoadMappingsActiveOrdered(t *testing.T) {
	_, r := newFixture()
	ms, err := r.LoadMappings(context.Background(), "sieg")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ms) != 5 {
		t.Fatalf("expected 5 active mappings, got %d", len(ms))
	}
	for i := 1; i < len(ms); i++ {
		if ms[i-1].DisplayOrder > ms[i].DisplayOrder {
			t.Fatalf("not ordered: %+v", ms)
		}
	}
}

func TestStagesByOrder(t *testing.T) {
	_, r := newFixture()
	got := r.StagesByOrder(context.Background(), "sieg")
	want := []Stage{StageNewLead, StageQualifying, StageFollowUp, StageQualified}
	if len(got) != len(want) {
		t.Fatalf("want %v got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v got %v", want, got)
		}
	}
	if s := r.StagesByOrder(context.Background(), "empty"); len(s) != 0 {
		t.Fatalf("expected no stages, got %v", s)
	}
}

func TestStagesByOrderTieBreak(t *testing.T) {
	tbl := NewTable([]TagMapping{
		{ExternalTag: "a", Stage: StageQualified, DisplayOrder: 3, Active: true},
		{ExternalTag: "b", Stage: StageDisqualified, DisplayOrder: 3, Active: true},
		{ExternalTag: "c", Stage: StageQualifying, DisplayOrder: 7, Active: true},
		{ExternalTag: "d", Stage: StageQualifying, DisplayOrder: 1, Active: true},
	})
	got := tbl.StagesByOrder()
	want := []Stage{StageQualifying, StageQualified, StageDisqualified}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v got %v", want, got)
		}
	}
}

func TestDuplicateTagFirstWins(t *testing.T) {
	tbl := NewTable([]TagMapping{
		{ExternalTag: "Hot", Stage: StageQualified, DisplayLabel: "first", DisplayOrder: 1, Active: true},
		{ExternalTag: "hot ", Stage: StageDisqualified, DisplayLabel: "second", DisplayOrder: 2, Active: true},
	})
	if tbl.StageOf("HOT") != StageQualified || tbl.LabelOf("hot") != "first" {
		t.Fatal("first mapping should win")
	}
}

func TestReloadAndInvalidate(t *testing.T) {
	conn, r := newFixture()
	ctx := context.Background()
	c := conn.clients["sieg"]
	r.StageOf(ctx, "sieg", "x")
	c.rows = []backend.TagMappingRow{{ExternalTag: "T9-unmapped", InternalStage: "disqualified", DisplayLabel: "Perdido", Active: true}}
	if got := r.LabelOf(ctx, "sieg", "T9-unmapped"); got != "T9-unmapped" {
		t.Fatalf("cached table should still be used, got %q", got)
	}
	if _, err := r.Reload(ctx, "sieg"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := r.StageOf(ctx, "sieg", "t9-UNMAPPED"); got != StageDisqualified {
		t.Fatalf("reload not applied: %s", got)
	}
	r.Clear()
	r.StageOf(ctx, "sieg", "x")
	if n := c.loads.Load(); n != 3 {
		t.Fatalf("expected 3 loads, got %d", n)
	}
}

func TestLoadErrorsAreTypedAndNotCached(t *testing.T) {
	conn, r := newFixture()
	ctx := context.Background()
	conn.err = problems.ConnectionFailed("resolve", "sieg", errors.New("refused"))
	_, err := r.LoadMappings(ctx, "sieg")
	if !errors.Is(err, problems.ErrLoad) || !errors.Is(err, problems.ErrConnectionFailed) {
		t.Fatalf("expected wrapped load error, got %v", err)
	}
	conn.err = nil
	if _, err := r.LoadMappings(ctx, "sieg"); err != nil {
		t.Fatalf("failure must not be cached: %v", err)
	}
	if _, err := r.LoadMappings(ctx, ""); !errors.Is(err, problems.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestUnauthorizedReported(t *testing.T) {
	conn, r := newFixture()
	conn.clients["sieg"].err = backend.ErrUnauthorized
	if _, err := r.LoadMappings(context.Background(), "sieg"); !errors.Is(err, problems.ErrLoad) {
		t.Fatalf("expected load error, got %v", err)
	}
	if len(conn.reported) != 1 {
		t.Fatalf("expected auth failure report, got %v", conn.reported)
	}
}

func TestInvalidateDuringLoadIsNotCached(t *testing.T) {
	conn, r := newFixture()
	c := conn.clients["sieg"]
	c.gate = make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = r.LoadMappings(context.Background(), "sieg")
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	r.Invalidate("sieg")
	close(c.gate)
	<-done
	c.gate = nil
	r.StageOf(context.Background(), "sieg", "x")
	if n := c.loads.Load(); n != 2 {
		t.Fatalf("stale load should not be cached, loads=%d", n)
	}
}

func TestFailedLoadIsNotRetriedByLookups(t *testing.T) {
	conn, r := newFixture()
	ctx := context.Background()
	c := conn.clients["sieg"]
	c.err = errors.New("backend down")

	for i := 0; i < 5; i++ {
		if got := r.StageOf(ctx, "sieg", "T2 - QUALIFICANDO"); got != StageNewLead {
			t.Fatalf("expected fallback while the table is unresolved, got %q", got)
		}
		if got := r.LabelOf(ctx, "sieg", "T2 - QUALIFICANDO"); got != "T2 - QUALIFICANDO" {
			t.Fatalf("expected raw tag label, got %q", got)
		}
	}
	_ = r.StagesByOrder(ctx, "sieg")
	if n := c.loads.Load(); n != 1 {
		t.Fatalf("lookups after a failed load must not hit the backend, loads=%d", n)
	}

	c.err = nil
	if _, err := r.Reload(ctx, "sieg"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := r.StageOf(ctx, "sieg", "T2 - QUALIFICANDO"); got != StageQualifying {
		t.Fatalf("expected mapped stage after reload, got %q", got)
	}
	if n := c.loads.Load(); n != 2 {
		t.Fatalf("expected one reload, loads=%d", n)
	}

	c.err = errors.New("backend down")
	r.Invalidate("sieg")
	r.StageOf(ctx, "sieg", "x")
	r.StageOf(ctx, "sieg", "x")
	c.err = nil
	r.Invalidate("sieg")
	if got := r.StageOf(ctx, "sieg", "T2 - QUALIFICANDO"); got != StageQualifying {
		t.Fatalf("invalidate must drop the remembered failure, got %q", got)
	}
	if n := c.loads.Load(); n != 4 {
		t.Fatalf("expected one load per invalidation, loads=%d", n)
	}
}
