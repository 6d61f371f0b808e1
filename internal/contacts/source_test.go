package contacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

const sampleCSV = `Business Name,Phone,Description,Website,Google Maps Link
Joe's Diner,+14155552671,Classic diner,,https://maps.example/joes
Lighthouse Books,+14155552672,Indie bookstore,https://lighthousebooks.example,
,+14155552673,No name here,,
Bad Phone Bakery,12,Tiny bakery,,
Plumb Perfect,+14155552675,Plumbing,ftp://not-a-site,
`

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.csv")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	src, err := Load(writeCSV(t, sampleCSV), "US", logx.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Len() != 5 {
		t.Fatalf("Len = %d, want 5 (invalid rows stay in sequence)", src.Len())
	}
	if src.Valid() != 3 {
		t.Fatalf("Valid = %d, want 3", src.Valid())
	}

	// Order and indexes follow the sheet.
	for i := 0; i < src.Len(); i++ {
		if src.At(i).Index != i {
			t.Fatalf("job %d has index %d", i, src.At(i).Index)
		}
	}

	j0 := src.At(0)
	if j0.SkipReason != "" || j0.Business.Phone != "+14155552671" {
		t.Fatalf("row 0 = %+v", j0)
	}
	if j0.Business.HasWebsite() {
		t.Fatal("row 0 should have no website")
	}
	if !src.At(1).Business.HasWebsite() {
		t.Fatal("row 1 should have a website")
	}

	if src.At(2).SkipReason == "" {
		t.Fatal("row 2 (missing name) should carry a skip reason")
	}
	if src.At(3).SkipReason == "" {
		t.Fatal("row 3 (bad phone) should carry a skip reason")
	}

	// Invalid website is dropped, row stays sendable.
	j4 := src.At(4)
	if j4.SkipReason != "" {
		t.Fatalf("row 4 should be sendable, got reason %q", j4.SkipReason)
	}
	if j4.Business.HasWebsite() {
		t.Fatal("row 4 website should have been dropped")
	}
}

func TestLoadMissingRequiredColumn(t *testing.T) {
	path := writeCSV(t, "Name,Number\nJoe,+14155552671\n")
	if _, err := Load(path, "US", logx.Nop()); err == nil {
		t.Fatal("expected error for missing required columns")
	}
}

func TestFingerprintStability(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contacts.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	a, err := Load(path, "US", logx.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := Load(path, "US", logx.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprint changed between identical loads: %s vs %s", a.Fingerprint(), b.Fingerprint())
	}

	// A different row set must produce a different fingerprint.
	other := filepath.Join(dir, "contacts2.csv")
	body := "Business Name,Phone\nSolo Shop,+14155552679\n"
	if err := os.WriteFile(other, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(other, "US", logx.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Fingerprint() == a.Fingerprint() {
		t.Fatal("different sources share a fingerprint")
	}
}

func TestLoadExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.xlsx")

	f := excelize.NewFile()
	rows := [][]any{
		{"Business Name", "Phone", "Description", "Website", "Google Maps Link"},
		{"Joe's Diner", "+14155552671", "Classic diner", "", ""},
		{"Lighthouse Books", "+14155552672", "", "https://lighthousebooks.example", ""},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cellRef, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save xlsx: %v", err)
	}
	_ = f.Close()

	src, err := Load(path, "US", logx.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Len() != 2 || src.Valid() != 2 {
		t.Fatalf("len=%d valid=%d, want 2/2", src.Len(), src.Valid())
	}
	if src.At(1).Business.Website == "" {
		t.Fatal("row 1 lost its website")
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw    string
		region string
		want   string
		ok     bool
	}{
		{"+14155552671", "US", "+14155552671", true},
		{"4155552671", "US", "+14155552671", true},
		{"6281234567890", "ID", "+6281234567890", true},
		{"", "US", "", false},
		{"12", "US", "", false},
		{"not a phone", "US", "", false},
	}
	for _, tt := range tests {
		got, err := normalizePhone(tt.raw, tt.region)
		if tt.ok && (err != nil || got != tt.want) {
			t.Fatalf("normalizePhone(%q, %s) = %q, %v; want %q", tt.raw, tt.region, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Fatalf("normalizePhone(%q, %s) should fail", tt.raw, tt.region)
		}
	}
}
