package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"duel-trivia-service/internal/app"
	"duel-trivia-service/internal/domain"
)

func TestCachedCatalogCaches(t *testing.T) {
	loader := &countingLoader{CatalogSource: NewStaticCatalog(domain.DefaultCatalog())}
	catalog := NewCachedCatalog(loader, time.Minute)

	items, err := catalog.LoadCatalog(context.Background())
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(items) != 10 {
		t.Fatalf("expected 10 items, got %d", len(items))
	}
	if loader.count() != 1 {
		t.Fatalf("expected loader once, got %d", loader.count())
	}

	if _, err := catalog.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("load catalog 2: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.count())
	}
}

func TestCachedCatalogExpires(t *testing.T) {
	loader := &countingLoader{CatalogSource: NewStaticCatalog(domain.DefaultCatalog())}
	catalog := NewCachedCatalog(loader, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	catalog.clock = func() time.Time { return now }

	if _, err := catalog.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := catalog.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("load catalog after ttl: %v", err)
	}
	if loader.count() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.count())
	}
}

func TestCachedCatalogCollapsesConcurrentLoads(t *testing.T) {
	loader := &countingLoader{CatalogSource: NewStaticCatalog(domain.DefaultCatalog()), delay: 50 * time.Millisecond}
	catalog := NewCachedCatalog(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := catalog.LoadCatalog(context.Background()); err != nil {
				t.Errorf("load catalog: %v", err)
			}
		}()
	}
	wg.Wait()
	if loader.count() != 1 {
		t.Fatalf("expected a single load, got %d", loader.count())
	}
}

func TestCachedCatalogServesStaleOnReloadFailure(t *testing.T) {
	loader := &countingLoader{CatalogSource: NewStaticCatalog(domain.DefaultCatalog())}
	catalog := NewCachedCatalog(loader, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	catalog.clock = func() time.Time { return now }

	if _, err := catalog.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	loader.setErr(domain.Unavailable("load catalog", errors.New("connection refused")))
	now = now.Add(2 * time.Minute)

	items, err := catalog.LoadCatalog(context.Background())
	if err != nil {
		t.Fatalf("expected stale catalog, got %v", err)
	}
	if len(items) != 10 {
		t.Fatalf("expected 10 stale items, got %d", len(items))
	}
}

func TestCachedCatalogFailsWithoutPriorLoad(t *testing.T) {
	loader := &countingLoader{CatalogSource: NewStaticCatalog(domain.DefaultCatalog())}
	loader.setErr(domain.Unavailable("load catalog", errors.New("connection refused")))

	_, err := NewCachedCatalog(loader, time.Minute).LoadCatalog(context.Background())
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
}

func TestDefaultCatalogIsValid(t *testing.T) {
	items := domain.DefaultCatalog()
	if len(items) != domain.DefaultQuestionCount {
		t.Fatalf("expected %d items, got %d", domain.DefaultQuestionCount, len(items))
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			t.Fatalf("invalid item: %v", err)
		}
	}
}

type countingLoader struct {
	app.CatalogSource
	delay time.Duration

	mu    sync.Mutex
	calls int
	err   error
}

func (l *countingLoader) LoadCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	l.mu.Lock()
	l.calls++
	err := l.err
	l.mu.Unlock()
	time.Sleep(l.delay)
	if err != nil {
		return nil, err
	}
	return l.CatalogSource.LoadCatalog(ctx)
}

func (l *countingLoader) setErr(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}
