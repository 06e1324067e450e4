package interchange

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"backoffice/internal/core"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleItems() []core.RawItem {
	return []core.RawItem{
		{
			Category: "woodwork", RoomName: "Living", ItemName: "TV Unit",
			Quantity: dec("120"), Unit: "nos", UnitPrice: dec("1000"),
			ItemDiscountPercentage: dec("5"), MarginDiscountPercentage: dec("10"),
			Status: "queued",
		},
		{
			Category: "glass_mirror", RoomName: "Bath", ItemName: "Shower Partition",
			Unit: "sqft", UnitPrice: dec("450.50"),
			Width: dec("4.5"), Height: dec("7"),
			Status: "ordered",
		},
		{
			Category: "misc_external", RoomName: "Kitchen", ItemName: `Hob, 4-burner "Pro"`,
			Quantity: dec("1"), Unit: "nos", UnitPrice: dec("32999.99"),
		},
	}
}

func TestRoundTripPreservesItems(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteItems(&buf, sampleItems()); err != nil {
		t.Fatalf("WriteItems failed: %v", err)
	}

	got, err := ReadItems(&buf)
	if err != nil {
		t.Fatalf("ReadItems failed: %v", err)
	}
	want := sampleItems()
	if len(got) != len(want) {
		t.Fatalf("round trip returned %d items, want %d", len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if g.Category != w.Category || g.RoomName != w.RoomName || g.ItemName != w.ItemName {
			t.Errorf("item %d identity changed: got %s/%s/%q", i, g.Category, g.RoomName, g.ItemName)
		}
		if !g.Quantity.Equal(w.Quantity.Round(2)) {
			t.Errorf("item %d quantity = %s, want %s", i, g.Quantity, w.Quantity)
		}
		if !g.UnitPrice.Equal(w.UnitPrice.Round(2)) {
			t.Errorf("item %d unit_price = %s, want %s", i, g.UnitPrice, w.UnitPrice)
		}
		if !g.Width.Equal(w.Width.Round(2)) || !g.Height.Equal(w.Height.Round(2)) {
			t.Errorf("item %d dimensions = %s×%s, want %s×%s", i, g.Width, g.Height, w.Width, w.Height)
		}
		if !g.ItemDiscountPercentage.Equal(w.ItemDiscountPercentage) {
			t.Errorf("item %d item discount = %s, want %s", i, g.ItemDiscountPercentage, w.ItemDiscountPercentage)
		}
		if !g.MarginDiscountPercentage.Equal(w.MarginDiscountPercentage) {
			t.Errorf("item %d margin discount = %s, want %s", i, g.MarginDiscountPercentage, w.MarginDiscountPercentage)
		}
		if g.Status != w.Status {
			t.Errorf("item %d status = %q, want %q", i, g.Status, w.Status)
		}
	}
}

func TestWriteItemsHeaderOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteItems(&buf, nil); err != nil {
		t.Fatalf("WriteItems failed: %v", err)
	}
	got := strings.TrimSpace(buf.String())
	want := "category,room_name,item_name,quantity,unit,unit_price,width,height,item_discount_percentage,discount_kg_charges_percentage,status"
	if got != want {
		t.Errorf("header = %q, want %q", got, want)
	}
}

func TestReadItemsRejectsBadInput(t *testing.T) {
	header := strings.Join(Header, ",") + "\n"
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			"reordered header",
			"room_name,category,item_name,quantity,unit,unit_price,width,height,item_discount_percentage,discount_kg_charges_percentage,status\n",
			`header column 1 is "room_name"`,
		},
		{
			"truncated header",
			"category,room_name,item_name\n",
			"header has 3 columns",
		},
		{
			"missing category",
			header + ",Living,TV Unit,1,nos,1000,,,,,\n",
			"line 2: category is required",
		},
		{
			"missing item name",
			header + "woodwork,Living,,1,nos,1000,,,,,\n",
			"line 2: item_name is required",
		},
		{
			"non-numeric quantity",
			header + "woodwork,Living,TV Unit,twelve,nos,1000,,,,,\n",
			`quantity "twelve" is not a number`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadItems(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestReadItemsAcceptsCaseInsensitiveHeader(t *testing.T) {
	input := "Category,Room_Name,Item_Name,Quantity,Unit,Unit_Price,Width,Height,Item_Discount_Percentage,Discount_KG_Charges_Percentage,Status\n" +
		"woodwork,Living,TV Unit,2,nos,500,,,,,\n"
	items, err := ReadItems(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadItems failed: %v", err)
	}
	if len(items) != 1 || !items[0].Quantity.Equal(dec("2")) {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestArtifactStoreSaveAndLoad(t *testing.T) {
	store := NewArtifactStore(t.TempDir())

	path, err := store.Save(7, 1, sampleItems())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if filepath.Base(path) != "v1_upload.csv" {
		t.Errorf("artifact path = %s, want v1_upload.csv basename", path)
	}

	items, err := store.Load(7, 1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("loaded %d items, want 3", len(items))
	}
}

func TestArtifactStoreFallsBackToExportVariant(t *testing.T) {
	base := t.TempDir()
	store := NewArtifactStore(base)

	// Simulate an older deployment: only the *_export.csv variant exists.
	path, err := store.Save(7, 2, sampleItems())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	renamed := filepath.Join(filepath.Dir(path), "v2_export.csv")
	if err := os.Rename(path, renamed); err != nil {
		t.Fatalf("rename: %v", err)
	}

	items, err := store.Load(7, 2)
	if err != nil {
		t.Fatalf("Load via export variant failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("loaded %d items, want 3", len(items))
	}
}

func TestArtifactStoreMissingIsRecoverable(t *testing.T) {
	store := NewArtifactStore(t.TempDir())
	_, err := store.Load(7, 99)
	if !errors.Is(err, ErrArtifactMissing) {
		t.Fatalf("expected ErrArtifactMissing, got %v", err)
	}
}
