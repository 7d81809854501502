package enums

import "testing"

func TestParseMergeMode(t *testing.T) {
	tests := []struct {
		in      string
		want    MergeMode
		wantErr bool
	}{
		{in: "", want: MergeIncremental},
		{in: "incremental", want: MergeIncremental},
		{in: "FULL-REPLACE", want: MergeFullReplace},
		{in: " full_replace ", want: MergeFullReplace},
		{in: "append", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMergeMode(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("expected error for %q", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseMergeMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMergeModeDestructive(t *testing.T) {
	if MergeIncremental.IsDestructive() {
		t.Fatal("incremental must not be destructive")
	}
	if !MergeFullReplace.IsDestructive() {
		t.Fatal("full replace must be destructive")
	}
	if MergeMode("bogus").IsValid() {
		t.Fatal("unexpected valid merge mode")
	}
}

func TestParseStoreDriver(t *testing.T) {
	d, err := ParseStoreDriver(" SQLite ")
	if err != nil || d != StoreSQLite {
		t.Fatalf("expected sqlite, got %q err=%v", d, err)
	}
	if !d.IsSQL() {
		t.Fatal("sqlite should be SQL backed")
	}
	if StoreBigQuery.IsSQL() {
		t.Fatal("bigquery is not SQL backed")
	}
	if _, err := ParseStoreDriver("mysql"); err == nil {
		t.Fatal("expected mysql to be rejected")
	}
}
