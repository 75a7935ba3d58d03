package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coolbeans/seiview/pkg/background"
	"github.com/coolbeans/seiview/pkg/cache"
	"github.com/coolbeans/seiview/pkg/paginate"
	"github.com/coolbeans/seiview/pkg/sei"
)

// fakeSEI serves synthetic listings and records upstream traffic.
type fakeSEI struct {
	mu            sync.Mutex
	totalDocs     int
	totalEvents   int
	docPageCalls  map[int]int
	pageFailures  map[int]int
	docCalls      int
	eventCalls    int
	procedure     sei.Procedimento
	procCalls     int
	signErr       error
	signedDocs    []string
	healthErr     error
	started       chan struct{}
	startOnce     sync.Once
	release       chan struct{}
}

func newFakeSEI(totalDocs, totalEvents int) *fakeSEI {
	return &fakeSEI{
		totalDocs:    totalDocs,
		totalEvents:  totalEvents,
		docPageCalls: make(map[int]int),
		pageFailures: make(map[int]int),
	}
}

func (fake *fakeSEI) gate() {
	if fake.started != nil {
		fake.startOnce.Do(func() { close(fake.started) })
	}
	if fake.release != nil {
		<-fake.release
	}
}

func pageSlice(total, page, pageSize int) (start, end int) {
	start = (page - 1) * pageSize
	end = start + pageSize
	if end > total {
		end = total
	}
	if start > total {
		start = total
	}
	return start, end
}

func (fake *fakeSEI) DocumentsPage(ctx context.Context, token, protocolo, idUnidade string, page, pageSize int) (sei.DocumentPage, error) {
	fake.mu.Lock()
	fake.docCalls++
	fake.docPageCalls[page]++
	if fake.pageFailures[page] > 0 {
		fake.pageFailures[page]--
		fake.mu.Unlock()
		return sei.DocumentPage{}, errors.New("upstream timeout")
	}
	fake.mu.Unlock()
	fake.gate()

	start, end := pageSlice(fake.totalDocs, page, pageSize)
	documents := make([]sei.Documento, 0, end-start)
	for index := start; index < end; index++ {
		documents = append(documents, sei.Documento{DocumentoFormatado: fmt.Sprintf("DOC-%04d", index)})
	}
	return sei.DocumentPage{
		Info:       sei.Info{Pagina: page, TotalItens: fake.totalDocs},
		Documentos: documents,
	}, nil
}

func (fake *fakeSEI) ProgressPage(ctx context.Context, token, protocolo, idUnidade string, page, pageSize int) (sei.ProgressPage, error) {
	fake.mu.Lock()
	fake.eventCalls++
	if fake.pageFailures[page] > 0 {
		fake.pageFailures[page]--
		fake.mu.Unlock()
		return sei.ProgressPage{}, errors.New("upstream timeout")
	}
	fake.mu.Unlock()

	start, end := pageSlice(fake.totalEvents, page, pageSize)
	events := make([]sei.Andamento, 0, end-start)
	for index := start; index < end; index++ {
		events = append(events, sei.Andamento{Descricao: fmt.Sprintf("evento %d", index)})
	}
	return sei.ProgressPage{
		Info:       sei.Info{Pagina: page, TotalItens: fake.totalEvents},
		Andamentos: events,
	}, nil
}

func (fake *fakeSEI) Procedure(ctx context.Context, token, protocolo, idUnidade string) (sei.Procedimento, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.procCalls++
	return fake.procedure, nil
}

func (fake *fakeSEI) Sign(ctx context.Context, token, idUnidade, protocoloDocumento string, signRequest sei.SignRequest) error {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.signErr != nil {
		return fake.signErr
	}
	fake.signedDocs = append(fake.signedDocs, protocoloDocumento)
	return nil
}

func (fake *fakeSEI) Health(ctx context.Context) error { return fake.healthErr }

func (fake *fakeSEI) documentCalls() int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.docCalls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(fake *fakeSEI, store cache.Cache, runner *background.Runner) *Service {
	return NewService(fake, store, runner, Options{
		FetchConfig: paginate.Config{Logger: quietLogger()},
		Logger:      quietLogger(),
	})
}

func TestDocumentsFullFetchCachesEnvelope(t *testing.T) {
	fake := newFakeSEI(37, 0)
	store := cache.NewMemory()
	service := newTestService(fake, store, nil)

	envelope, err := service.Documents(context.Background(), "tok", "00011.000123/2024-01", "110000001", false)
	if err != nil {
		t.Fatalf("Documents failed: %v", err)
	}
	if envelope.Info.Parcial {
		t.Error("full fetch reported Parcial=true")
	}
	if len(envelope.Documentos) != 37 || envelope.Info.TotalItens != 37 {
		t.Fatalf("got %d documents (TotalItens %d), want 37", len(envelope.Documentos), envelope.Info.TotalItens)
	}
	for index, document := range envelope.Documentos {
		if want := fmt.Sprintf("DOC-%04d", index); document.DocumentoFormatado != want {
			t.Fatalf("document %d = %q, want %q", index, document.DocumentoFormatado, want)
		}
	}

	callsAfterFirst := fake.documentCalls()
	again, err := service.Documents(context.Background(), "tok", "00011000123202401", "110000001", false)
	if err != nil {
		t.Fatalf("second Documents failed: %v", err)
	}
	if fake.documentCalls() != callsAfterFirst {
		t.Errorf("second call hit upstream: %d calls, want %d", fake.documentCalls(), callsAfterFirst)
	}
	if len(again.Documentos) != 37 {
		t.Errorf("cached envelope has %d documents, want 37", len(again.Documentos))
	}
}

func TestDocumentsPartialSpawnsBackgroundCompletion(t *testing.T) {
	fake := newFakeSEI(500, 0)
	store := cache.NewMemory()
	runner := background.NewRunner(4, quietLogger())
	service := newTestService(fake, store, runner)

	envelope, err := service.Documents(context.Background(), "tok", "99911000321202455", "110000001", true)
	if err != nil {
		t.Fatalf("Documents failed: %v", err)
	}
	if !envelope.Info.Parcial {
		t.Fatal("expected a partial envelope for a 50-page listing")
	}
	if len(envelope.Documentos) != 100 {
		t.Fatalf("partial envelope has %d documents, want 100", len(envelope.Documentos))
	}
	if envelope.Info.TotalItens != 500 {
		t.Errorf("TotalItens = %d, want 500", envelope.Info.TotalItens)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("waiting for background completion: %v", err)
	}

	var upgraded Envelope
	if err := cache.GetJSON(context.Background(), store, cache.DocumentsKey("99911000321202455", "110000001"), &upgraded); err != nil {
		t.Fatalf("cache has no upgraded envelope: %v", err)
	}
	if upgraded.Info.Parcial {
		t.Error("background completion cached a partial envelope")
	}
	if len(upgraded.Documentos) != 500 {
		t.Errorf("upgraded envelope has %d documents, want 500", len(upgraded.Documentos))
	}
}

func TestDocumentsPartialSmallListingIsCachedComplete(t *testing.T) {
	fake := newFakeSEI(80, 0)
	store := cache.NewMemory()
	service := newTestService(fake, store, nil)

	envelope, err := service.Documents(context.Background(), "tok", "111", "220000002", true)
	if err != nil {
		t.Fatalf("Documents failed: %v", err)
	}
	if envelope.Info.Parcial {
		t.Error("8-page listing should degenerate to a full fetch")
	}
	if len(envelope.Documentos) != 80 {
		t.Fatalf("got %d documents, want 80", len(envelope.Documentos))
	}

	var cached Envelope
	if err := cache.GetJSON(context.Background(), store, cache.DocumentsKey("111", "220000002"), &cached); err != nil {
		t.Fatalf("complete small listing was not cached: %v", err)
	}
	if cached.Info.Parcial {
		t.Error("cached envelope is marked partial")
	}
}

func TestDocumentsConcurrentFetchesCollapse(t *testing.T) {
	fake := newFakeSEI(30, 0)
	fake.started = make(chan struct{})
	fake.release = make(chan struct{})
	store := cache.NewMemory()
	service := newTestService(fake, store, nil)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]Envelope, callers)
	errs := make([]error, callers)
	for caller := 0; caller < callers; caller++ {
		wg.Add(1)
		go func(caller int) {
			defer wg.Done()
			results[caller], errs[caller] = service.Documents(context.Background(), "tok", "333", "110000001", false)
		}(caller)
	}

	<-fake.started
	time.Sleep(50 * time.Millisecond)
	close(fake.release)
	wg.Wait()

	for caller := 0; caller < callers; caller++ {
		if errs[caller] != nil {
			t.Fatalf("caller %d failed: %v", caller, errs[caller])
		}
		if len(results[caller].Documentos) != 30 {
			t.Fatalf("caller %d got %d documents, want 30", caller, len(results[caller].Documentos))
		}
	}
	if calls := fake.documentCalls(); calls != 3 {
		t.Errorf("upstream saw %d page calls, want 3 (one collapsed fetch)", calls)
	}
}

func TestDocumentsCollapsedFetchSurvivesFirstCallerCancel(t *testing.T) {
	fake := newFakeSEI(30, 0)
	fake.started = make(chan struct{})
	fake.release = make(chan struct{})
	store := cache.NewMemory()
	service := newTestService(fake, store, nil)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	defer cancelLeader()

	var wg sync.WaitGroup
	var leaderErr, followerErr error
	var followerEnvelope Envelope

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, leaderErr = service.Documents(leaderCtx, "tok", "777", "110000001", false)
	}()

	<-fake.started
	wg.Add(1)
	go func() {
		defer wg.Done()
		followerEnvelope, followerErr = service.Documents(context.Background(), "tok", "777", "110000001", false)
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	time.Sleep(20 * time.Millisecond)
	close(fake.release)
	wg.Wait()

	if followerErr != nil {
		t.Fatalf("follower with healthy context failed: %v", followerErr)
	}
	if len(followerEnvelope.Documentos) != 30 {
		t.Fatalf("follower got %d documents, want 30", len(followerEnvelope.Documentos))
	}
	if leaderErr != nil {
		t.Errorf("canceled caller received %v, want the shared result", leaderErr)
	}

	var cached Envelope
	if err := cache.GetJSON(context.Background(), store, cache.DocumentsKey("777", "110000001"), &cached); err != nil {
		t.Errorf("shared fetch result was not cached: %v", err)
	}
}

func TestProgressCacheHitSkipsUpstream(t *testing.T) {
	fake := newFakeSEI(0, 50)
	store := cache.NewMemory()
	service := newTestService(fake, store, nil)

	seeded := progressEnvelope("444", []sei.Andamento{{Descricao: "autuado"}}, 1, false)
	if err := cache.SetJSON(context.Background(), store, cache.ProgressKey("444", "110000001"), seeded, time.Hour); err != nil {
		t.Fatalf("seeding cache: %v", err)
	}

	envelope, err := service.Progress(context.Background(), "tok", "444", "110000001", false)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if fake.eventCalls != 0 {
		t.Errorf("cache hit still made %d upstream calls", fake.eventCalls)
	}
	if len(envelope.Andamentos) != 1 || envelope.Andamentos[0].Descricao != "autuado" {
		t.Errorf("unexpected envelope: %+v", envelope)
	}
}

func TestSignInvalidatesUnitDocumentListings(t *testing.T) {
	fake := newFakeSEI(0, 0)
	store := cache.NewMemory()
	service := newTestService(fake, store, nil)
	ctx := context.Background()

	keep := cache.ProgressKey("555", "110000001")
	dropA := cache.DocumentsKey("555", "110000001")
	dropB := cache.DocumentsKey("666", "110000001")
	otherUnit := cache.DocumentsKey("555", "220000002")
	for _, key := range []string{keep, dropA, dropB, otherUnit} {
		if err := cache.SetJSON(ctx, store, key, Envelope{}, time.Hour); err != nil {
			t.Fatalf("seeding %s: %v", key, err)
		}
	}

	if err := service.Sign(ctx, "tok", "110000001", "0009999", sei.SignRequest{Cargo: "Analista"}); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if len(fake.signedDocs) != 1 || fake.signedDocs[0] != "0009999" {
		t.Fatalf("sign not forwarded upstream: %v", fake.signedDocs)
	}

	for _, dropped := range []string{dropA, dropB} {
		if _, err := store.Get(ctx, dropped); !errors.Is(err, cache.ErrMiss) {
			t.Errorf("key %s survived sign invalidation", dropped)
		}
	}
	for _, kept := range []string{keep, otherUnit} {
		if _, err := store.Get(ctx, kept); err != nil {
			t.Errorf("key %s was invalidated but should survive: %v", kept, err)
		}
	}
}

func TestSignUpstreamFailureLeavesCacheIntact(t *testing.T) {
	fake := newFakeSEI(0, 0)
	fake.signErr = errors.New("senha invalida")
	store := cache.NewMemory()
	service := newTestService(fake, store, nil)
	ctx := context.Background()

	key := cache.DocumentsKey("777", "110000001")
	if err := cache.SetJSON(ctx, store, key, Envelope{}, time.Hour); err != nil {
		t.Fatalf("seeding cache: %v", err)
	}

	if err := service.Sign(ctx, "tok", "110000001", "0001111", sei.SignRequest{}); err == nil {
		t.Fatal("expected sign error")
	}
	if _, err := store.Get(ctx, key); err != nil {
		t.Errorf("cache entry dropped despite failed sign: %v", err)
	}
}

func TestInvalidateClearsAllProcessNamespaces(t *testing.T) {
	fake := newFakeSEI(0, 0)
	store := cache.NewMemory()
	service := newTestService(fake, store, nil)
	ctx := context.Background()

	targets := []string{
		cache.DocumentsKey("888", "110000001"),
		cache.DocumentsKey("888", "220000002"),
		cache.ProgressKey("888", "110000001"),
		cache.OpenUnitsKey("888", "110000001"),
	}
	unrelated := cache.DocumentsKey("999", "110000001")
	for _, key := range append(targets, unrelated) {
		if err := cache.SetJSON(ctx, store, key, Envelope{}, time.Hour); err != nil {
			t.Fatalf("seeding %s: %v", key, err)
		}
	}

	removed, err := service.Invalidate(ctx, "888")
	if err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if removed != len(targets) {
		t.Errorf("removed %d entries, want %d", removed, len(targets))
	}
	for _, key := range targets {
		if _, err := store.Get(ctx, key); !errors.Is(err, cache.ErrMiss) {
			t.Errorf("key %s survived invalidation", key)
		}
	}
	if _, err := store.Get(ctx, unrelated); err != nil {
		t.Errorf("unrelated process was invalidated: %v", err)
	}
}

func TestOpenUnitsServedFromCacheOnSecondCall(t *testing.T) {
	fake := newFakeSEI(0, 0)
	fake.procedure = sei.Procedimento{
		UnidadesProcedimentoAberto: []sei.UnidadeAberta{
			{Unidade: sei.Unidade{IdUnidade: "110000001", Sigla: "SEAD"}},
		},
		LinkAcesso: "https://sei.example/acesso",
	}
	store := cache.NewMemory()
	service := newTestService(fake, store, nil)

	first, err := service.OpenUnits(context.Background(), "tok", "123", "110000001")
	if err != nil {
		t.Fatalf("OpenUnits failed: %v", err)
	}
	second, err := service.OpenUnits(context.Background(), "tok", "123", "110000001")
	if err != nil {
		t.Fatalf("second OpenUnits failed: %v", err)
	}
	if fake.procCalls != 1 {
		t.Errorf("upstream consulted %d times, want 1", fake.procCalls)
	}
	if len(second.UnidadesProcedimentoAberto) != 1 || second.LinkAcesso != first.LinkAcesso {
		t.Errorf("cached procedure differs: %+v", second)
	}
}

type pingFailingCache struct {
	cache.Cache
}

func (pingFailingCache) Ping(ctx context.Context) error { return errors.New("cache unreachable") }

func TestHealthReportsEachDependency(t *testing.T) {
	fake := newFakeSEI(0, 0)
	service := newTestService(fake, pingFailingCache{cache.NewMemory()}, nil)

	status := service.Health(context.Background())
	if status.Upstream != "up" {
		t.Errorf("Upstream = %q, want up", status.Upstream)
	}
	if status.Cache != "down" {
		t.Errorf("Cache = %q, want down", status.Cache)
	}

	fake.healthErr = errors.New("connection refused")
	status = service.Health(context.Background())
	if status.Upstream != "down" {
		t.Errorf("Upstream = %q after upstream failure, want down", status.Upstream)
	}
}
