package basemap

import "testing"

func TestAll(t *testing.T) {
	all := All()
	if len(all) != 3 {
		t.Fatalf("len=%d, want 3", len(all))
	}
	for _, l := range all {
		if l.MaxZoom != 18 {
			t.Errorf("%s maxZoom=%d, want 18", l.Kind, l.MaxZoom)
		}
		if l.Attribution == "" || l.URL == "" {
			t.Errorf("%s missing url or attribution", l.Kind)
		}
	}
}

func TestParse(t *testing.T) {
	if Parse("satellite") != Satellite {
		t.Fatal("satellite")
	}
	if Parse("dark") != Dark {
		t.Fatal("dark")
	}
	if Parse("") != Default || Parse("osm") != Default {
		t.Fatal("unknown values should fall back to default")
	}
}
