package attendance

import (
	"context"
	"strings"
	"sync"
)

// Store loads and persists grids by sheet key. Load must report a missing
// sheet with an error wrapping ErrSheetNotFound.
type Store interface {
	Load(ctx context.Context, key string) (*Grid, error)
	Persist(ctx context.Context, key string, g *Grid) error
}

// Result describes a successful mark.
type Result struct {
	Sheet         string `json:"sheet"`
	Name          string `json:"name"`
	Query         string `json:"query"`
	Date          string `json:"date"`
	Cell          string `json:"cell"`
	AlreadyMarked bool   `json:"alreadyMarked"`
}

// Engine runs one load, mark, persist cycle per Update call.
//
// Updates to the same sheet key are serialized inside the process so two
// concurrent scans cannot both read the old sheet and lose one mark. Other
// writers of a sheet in the same process go through Exclusive. Writers
// outside the process (another instance, someone editing the file by hand)
// are not coordinated with and the later persist wins.
type Engine struct {
	store Store

	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is dropped from the map once refs reaches zero.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, locks: make(map[string]*keyLock)}
}

// Exclusive runs fn while holding the lock Update takes for key. Replacing a
// sheet must go through here so it cannot land between an update's load and
// persist.
func (e *Engine) Exclusive(key string, fn func() error) error {
	unlock := e.lock(key)
	defer unlock()
	return fn()
}

// Update marks nameQuery present on targetDate in the sheet named key.
// Errors wrap ErrInvalidInput, ErrDateNotFound, ErrNameNotFound or come back
// as a *StorageError. Nothing is persisted unless both lookups succeed.
func (e *Engine) Update(ctx context.Context, key, targetDate, nameQuery string) (Result, error) {
	date := strings.TrimSpace(targetDate)
	if date == "" {
		return Result{}, &InputError{Field: "date", Reason: "is required"}
	}
	if strings.TrimSpace(nameQuery) == "" {
		return Result{}, &InputError{Field: "name", Reason: "is required"}
	}

	unlock := e.lock(key)
	defer unlock()

	grid, err := e.store.Load(ctx, key)
	if err != nil {
		return Result{}, &StorageError{Sheet: key, Op: "load", Err: err}
	}

	col, ok := ResolveColumn(grid, date)
	if !ok {
		return Result{}, &LookupError{Sheet: key, Value: date, Err: ErrDateNotFound}
	}
	row, ok := ResolveRow(grid, nameQuery)
	if !ok {
		return Result{}, &LookupError{Sheet: key, Value: nameQuery, Err: ErrNameNotFound}
	}

	already := grid.At(row, col).Equal(Text(Present))
	address, err := ApplyMark(grid, row, col)
	if err != nil {
		return Result{}, err
	}
	if err := e.store.Persist(ctx, key, grid); err != nil {
		return Result{}, &StorageError{Sheet: key, Op: "persist", Err: err}
	}

	return Result{
		Sheet:         key,
		Name:          strings.TrimSpace(grid.At(row, 0).String()),
		Query:         nameQuery,
		Date:          date,
		Cell:          address,
		AlreadyMarked: already,
	}, nil
}

func (e *Engine) lock(key string) func() {
	e.mu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &keyLock{}
		e.locks[key] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, key)
		}
		e.mu.Unlock()
	}
}
