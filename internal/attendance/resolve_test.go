package attendance

import (
	"reflect"
	"testing"
	"time"
)

func textRow(values ...string) []Cell {
	row := make([]Cell, len(values))
	for i, v := range values {
		row[i] = Text(v)
	}
	return row
}

func TestNormalizeDate(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	tests := []struct {
		name string
		cell Cell
		want string
	}{
		{"date", Date(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), "2024-03-01"},
		{"date keeps authored zone", Date(time.Date(2024, 3, 1, 23, 30, 0, 0, est)), "2024-03-01"},
		{"text passes through", Text("2024-03-01"), "2024-03-01"},
		{"text is not reformatted", Text("3/1/2024"), "3/1/2024"},
		{"empty", Empty(), ""},
		{"number", Number(45352), "45352"},
	}
	for _, tt := range tests {
		if got := NormalizeDate(tt.cell); got != tt.want {
			t.Fatalf("%s: NormalizeDate = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestResolveColumn(t *testing.T) {
	g := NewGrid([][]Cell{textRow("Name", "2024-01-01", "2024-01-02")})

	col, ok := ResolveColumn(g, "2024-01-02")
	if !ok || col != 2 {
		t.Fatalf("expected column 2, got %d (found=%v)", col, ok)
	}
	if _, ok := ResolveColumn(g, "2099-01-01"); ok {
		t.Fatalf("expected missing date to be not found")
	}
	if _, ok := ResolveColumn(g, "2024-01"); ok {
		t.Fatalf("expected prefix of a date not to match")
	}
}

func TestResolveColumnNormalizesDateCells(t *testing.T) {
	g := NewGrid([][]Cell{{
		Text("Name"),
		Date(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Date(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
	}})
	col, ok := ResolveColumn(g, "2024-01-02")
	if !ok || col != 2 {
		t.Fatalf("expected column 2, got %d (found=%v)", col, ok)
	}
}

func TestResolveColumnEmptyGrid(t *testing.T) {
	if _, ok := ResolveColumn(NewGrid(nil), "2024-01-01"); ok {
		t.Fatalf("expected empty grid to have no columns")
	}
}

func TestResolveRow(t *testing.T) {
	g := NewGrid([][]Cell{
		textRow("Name"),
		textRow("Jonathan"),
		textRow("Jones"),
		textRow("amit"),
	})

	for _, q := range []string{"jon", "JON", "  Jon  "} {
		row, ok := ResolveRow(g, q)
		if !ok || row != 1 {
			t.Fatalf("query %q: expected row 1, got %d (found=%v)", q, row, ok)
		}
	}
	if row, ok := ResolveRow(g, "jones"); !ok || row != 2 {
		t.Fatalf("expected row 2 for jones, got %d (found=%v)", row, ok)
	}
	if _, ok := ResolveRow(g, "zzz"); ok {
		t.Fatalf("expected zzz to be not found")
	}
	if _, ok := ResolveRow(g, "athan"); ok {
		t.Fatalf("expected mid-name substring not to match")
	}
}

func TestResolveRowSkipsHeaderAndEmptyNames(t *testing.T) {
	g := NewGrid([][]Cell{
		textRow("Name"),
		nil,
		{Empty(), Text("P")},
		textRow("   "),
		textRow(" Nadia "),
	})
	row, ok := ResolveRow(g, "na")
	if !ok || row != 4 {
		t.Fatalf("expected row 4, got %d (found=%v)", row, ok)
	}
}

func TestResolveRowComposedAccents(t *testing.T) {
	g := NewGrid([][]Cell{
		textRow("Name"),
		textRow("Jose\u0301 Ruiz"),
	})
	if row, ok := ResolveRow(g, "JOSÉ"); !ok || row != 1 {
		t.Fatalf("expected accented query to match row 1, got %d (found=%v)", row, ok)
	}
}

func TestResolveRowNumericName(t *testing.T) {
	g := NewGrid([][]Cell{textRow("Name"), {Number(1042)}})
	if row, ok := ResolveRow(g, "104"); !ok || row != 1 {
		t.Fatalf("expected numeric name cell to match, got %d (found=%v)", row, ok)
	}
}

func TestApplyMarkIsIdempotent(t *testing.T) {
	base := NewGrid([][]Cell{
		textRow("Name", "2024-03-01", "2024-03-02"),
		textRow("Alice"),
		textRow("Bob", "", ""),
	})

	once := base.Clone()
	if _, err := ApplyMark(once, 2, 1); err != nil {
		t.Fatalf("apply mark: %v", err)
	}
	twice := base.Clone()
	for i := 0; i < 2; i++ {
		if _, err := ApplyMark(twice, 2, 1); err != nil {
			t.Fatalf("apply mark: %v", err)
		}
	}
	if !reflect.DeepEqual(once.Rows, twice.Rows) {
		t.Fatalf("expected identical grids, got %v and %v", once.Rows, twice.Rows)
	}
	if got := once.At(2, 1); got != Text(Present) {
		t.Fatalf("expected marker at B3, got %#v", got)
	}
}

func TestApplyMarkGrowsShortRow(t *testing.T) {
	g := NewGrid([][]Cell{
		textRow("Name", "2024-03-01", "2024-03-02"),
		textRow("Alice"),
	})
	addr, err := ApplyMark(g, 1, 2)
	if err != nil {
		t.Fatalf("apply mark: %v", err)
	}
	if addr != "C2" {
		t.Fatalf("expected C2, got %s", addr)
	}
	want := []Cell{Text("Alice"), Empty(), Text(Present)}
	if !reflect.DeepEqual(g.Rows[1], want) {
		t.Fatalf("unexpected row: %v", g.Rows[1])
	}
	edits := g.Edits()
	if len(edits) != 1 || edits[0].Address != "C2" || edits[0].Row != 2 || edits[0].Col != 3 {
		t.Fatalf("unexpected edits: %+v", edits)
	}
}
