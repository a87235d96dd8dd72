package attendance

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
)

type memStore struct {
	mu        sync.Mutex
	sheets    map[string]*Grid
	persisted int
	failWrite error
}

func newMemStore() *memStore {
	return &memStore{sheets: make(map[string]*Grid)}
}

func (m *memStore) Load(_ context.Context, key string) (*Grid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.sheets[key]
	if !ok {
		return nil, fmt.Errorf("open %s.xlsx: %w", key, ErrSheetNotFound)
	}
	return NewGrid(g.Clone().Rows), nil
}

func (m *memStore) Persist(_ context.Context, key string, g *Grid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	m.persisted++
	m.sheets[key] = NewGrid(g.Clone().Rows)
	return nil
}

func rosterGrid() *Grid {
	return NewGrid([][]Cell{
		textRow("Name", "2024-03-01"),
		textRow("Alice"),
		textRow("Bob"),
	})
}

func TestUpdateMarksCell(t *testing.T) {
	store := newMemStore()
	store.sheets["cs101"] = rosterGrid()
	engine := NewEngine(store)

	res, err := engine.Update(context.Background(), "cs101", "2024-03-01", "ali")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Name != "Alice" || res.Date != "2024-03-01" || res.Cell != "B2" || res.AlreadyMarked {
		t.Fatalf("unexpected result: %+v", res)
	}

	got := store.sheets["cs101"]
	want := [][]Cell{
		textRow("Name", "2024-03-01"),
		textRow("Alice", Present),
		textRow("Bob"),
	}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Fatalf("unexpected grid: %v", got.Rows)
	}
	if store.persisted != 1 {
		t.Fatalf("expected one persist, got %d", store.persisted)
	}
}

func TestUpdateTwiceReportsAlreadyMarked(t *testing.T) {
	store := newMemStore()
	store.sheets["cs101"] = rosterGrid()
	engine := NewEngine(store)

	if _, err := engine.Update(context.Background(), "cs101", "2024-03-01", "bob"); err != nil {
		t.Fatalf("first update: %v", err)
	}
	first := store.sheets["cs101"].Clone().Rows

	res, err := engine.Update(context.Background(), "cs101", " 2024-03-01 ", "BOB")
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if !res.AlreadyMarked || res.Cell != "B3" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !reflect.DeepEqual(first, store.sheets["cs101"].Rows) {
		t.Fatalf("expected repeated mark to leave the grid unchanged")
	}
}

func TestUpdateNameNotFoundDoesNotPersist(t *testing.T) {
	store := newMemStore()
	store.sheets["cs101"] = rosterGrid()
	engine := NewEngine(store)

	_, err := engine.Update(context.Background(), "cs101", "2024-03-01", "zzz")
	if !errors.Is(err, ErrNameNotFound) {
		t.Fatalf("expected ErrNameNotFound, got %v", err)
	}
	var lookup *LookupError
	if !errors.As(err, &lookup) || lookup.Value != "zzz" || lookup.Sheet != "cs101" {
		t.Fatalf("expected lookup error carrying the query, got %#v", err)
	}
	if store.persisted != 0 {
		t.Fatalf("expected no persist, got %d", store.persisted)
	}
	if !reflect.DeepEqual(store.sheets["cs101"].Rows, rosterGrid().Rows) {
		t.Fatalf("expected grid to be unmodified")
	}
}

func TestUpdateDateNotFound(t *testing.T) {
	store := newMemStore()
	store.sheets["cs101"] = rosterGrid()
	engine := NewEngine(store)

	_, err := engine.Update(context.Background(), "cs101", "2099-01-01", "alice")
	if !errors.Is(err, ErrDateNotFound) {
		t.Fatalf("expected ErrDateNotFound, got %v", err)
	}
	if errors.Is(err, ErrNameNotFound) {
		t.Fatalf("date failure must not look like a name failure")
	}
	if store.persisted != 0 {
		t.Fatalf("expected no persist, got %d", store.persisted)
	}
}

func TestUpdateMissingSheet(t *testing.T) {
	engine := NewEngine(newMemStore())

	_, err := engine.Update(context.Background(), "nope", "2024-03-01", "alice")
	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Op != "load" {
		t.Fatalf("expected load storage error, got %v", err)
	}
	if !errors.Is(err, ErrSheetNotFound) {
		t.Fatalf("expected ErrSheetNotFound in chain, got %v", err)
	}
}

func TestUpdatePersistFailure(t *testing.T) {
	store := newMemStore()
	store.sheets["cs101"] = rosterGrid()
	store.failWrite = errors.New("disk full")
	engine := NewEngine(store)

	_, err := engine.Update(context.Background(), "cs101", "2024-03-01", "alice")
	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Op != "persist" {
		t.Fatalf("expected persist storage error, got %v", err)
	}
}

func TestUpdateRejectsBlankInput(t *testing.T) {
	engine := NewEngine(newMemStore())
	for _, tc := range [][2]string{{"", "alice"}, {"2024-03-01", "  "}} {
		_, err := engine.Update(context.Background(), "cs101", tc[0], tc[1])
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %q, got %v", tc, err)
		}
	}
}

func TestUpdateConcurrentMarksOnSameSheet(t *testing.T) {
	store := newMemStore()
	rows := [][]Cell{textRow("Name", "2024-03-01")}
	for i := 0; i < 20; i++ {
		rows = append(rows, textRow(fmt.Sprintf("student-%02d", i)))
	}
	store.sheets["cs101"] = NewGrid(rows)
	engine := NewEngine(store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := engine.Update(context.Background(), "cs101", "2024-03-01", fmt.Sprintf("student-%02d", i)); err != nil {
				t.Errorf("update %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	g := store.sheets["cs101"]
	for i := 1; i <= 20; i++ {
		if got := g.At(i, 1).String(); got != Present {
			t.Fatalf("row %d lost its mark: %q", i, got)
		}
	}
}

func TestExclusiveHoldsOffUpdate(t *testing.T) {
	store := newMemStore()
	store.sheets["cs101"] = NewGrid([][]Cell{
		textRow("Name", "2024-03-01"),
		textRow("Alice Smith"),
	})
	engine := NewEngine(store)

	done := make(chan error, 1)
	err := engine.Exclusive("cs101", func() error {
		go func() {
			_, err := engine.Update(context.Background(), "cs101", "2024-03-01", "ali")
			done <- err
		}()
		store.mu.Lock()
		store.sheets["cs101"] = NewGrid([][]Cell{
			textRow("Name", "2024-03-01"),
			textRow("Zed Young"),
		})
		store.mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("exclusive: %v", err)
	}

	if err := <-done; !errors.Is(err, ErrNameNotFound) {
		t.Fatalf("expected update to see the replaced roster, got %v", err)
	}
	if got := store.sheets["cs101"].At(1, 1).String(); got != "" {
		t.Fatalf("replaced roster was marked: %q", got)
	}
}

func TestLocksReleasedAfterUse(t *testing.T) {
	store := newMemStore()
	store.sheets["cs101"] = NewGrid([][]Cell{
		textRow("Name", "2024-03-01"),
		textRow("Alice Smith"),
	})
	engine := NewEngine(store)

	for i := 0; i < 50; i++ {
		_, _ = engine.Update(context.Background(), fmt.Sprintf("random-%d", i), "2024-03-01", "alice")
	}
	if _, err := engine.Update(context.Background(), "cs101", "2024-03-01", "alice"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := engine.Exclusive("cs101", func() error { return nil }); err != nil {
		t.Fatalf("exclusive: %v", err)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.locks) != 0 {
		t.Fatalf("expected no retained locks, got %d", len(engine.locks))
	}
}
