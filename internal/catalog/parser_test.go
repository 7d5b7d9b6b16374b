package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleCatalog = `
shop:
  name: "Tiem Tra"
  currency: "vnd"
products:
  - id: "tea-1"
    code: "TEA01"
    name: "Oolong"
    price: 120000
    weight: 300
    thumbnail: "/img/oolong.jpg"
    active: true
  - id: "tea-2"
    name: "Retired blend"
    price: 90000
    active: false
`

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name:    "valid catalog",
			yaml:    sampleCatalog,
			wantErr: false,
		},
		{
			name:    "invalid yaml",
			yaml:    "invalid: yaml: content:",
			wantErr: true,
		},
	}

	parser := NewParser()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := parser.ParseFromString(tt.yaml)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if file.Shop.Name != "Tiem Tra" {
				t.Errorf("expected shop name 'Tiem Tra', got '%s'", file.Shop.Name)
			}

			if len(file.Products) != 2 {
				t.Errorf("expected 2 products, got %d", len(file.Products))
			}
			if file.Products[0].Price != 120000 || file.Products[0].Weight != 300 {
				t.Errorf("unexpected first product: %+v", file.Products[0])
			}
		})
	}
}

func TestLoadAndFindByID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	product, err := cat.FindByID(t.Context(), "tea-1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	item := product.Snapshot(2)
	if item.LineTotal() != 240000 || item.UnitWeight != 300 || item.Code != "TEA01" {
		t.Fatalf("unexpected snapshot: %+v", item)
	}

	if _, err := cat.FindByID(t.Context(), "tea-2"); err == nil {
		t.Fatal("expected inactive product to be missing")
	}
	if _, err := cat.FindByID(t.Context(), "nope"); err == nil {
		t.Fatal("expected unknown product to be missing")
	}
	if got := len(cat.Products()); got != 1 {
		t.Fatalf("Products() len = %d, want 1", got)
	}
}

func TestParseQuantity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  int
	}{
		{name: "int", value: 3, want: 3},
		{name: "string", value: " 4 ", want: 4},
		{name: "float", value: 2.0, want: 2},
		{name: "fractional float", value: 2.5, want: 1},
		{name: "zero", value: 0, want: 1},
		{name: "garbage", value: "many", want: 1},
		{name: "nil", value: nil, want: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseQuantity(tt.value); got != tt.want {
				t.Fatalf("ParseQuantity(%v) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}
