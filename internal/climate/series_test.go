package climate

import (
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ujung/wetter/internal/dwd"
	"github.com/ujung/wetter/internal/models"
)

func v(f float64) sql.NullFloat64 { return sql.NullFloat64{Float64: f, Valid: true} }

var missing = sql.NullFloat64{}

func mustTable(t *testing.T, csv string) *dwd.Table {
	t.Helper()
	tbl, err := dwd.ParseTable(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	return tbl
}

func seriesEqual(a, b Series) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFilter(t *testing.T) {
	tbl := mustTable(t, `MESS_DATUM;TXK;RSK
20210503;14.0;-999
19990503;12.5;0.0
20200502;18.0;1.0
20200503;20.0;NA
20200603;25.0;0.0
`)

	got := Filter(tbl, models.TempMax, "0503")
	want := Series{{"2021", v(14)}, {"1999", v(12.5)}, {"2020", v(20)}}
	if !seriesEqual(got, want) {
		t.Errorf("Filter TXK = %v, want %v", got, want)
	}

	got = Filter(tbl, models.Precip, "0503")
	want = Series{{"2021", missing}, {"1999", v(0)}, {"2020", missing}}
	if !seriesEqual(got, want) {
		t.Errorf("Filter RSK = %v, want %v", got, want)
	}
}

func TestFilter_OnlyMatchingDays(t *testing.T) {
	tbl := mustTable(t, "MESS_DATUM;TXK\n20200101;1\n20200110;2\n20201001;3\n20200111;4\n")
	for mmdd := range MonthDays() {
		for _, e := range Filter(tbl, models.TempMax, mmdd) {
			found := false
			for i := 0; i < tbl.Len(); i++ {
				if tbl.Date(i)[:4] == e.Year && strings.HasSuffix(tbl.Date(i), mmdd) {
					found = true
				}
			}
			if !found {
				t.Errorf("Filter(%s) returned %v without a matching row", mmdd, e)
			}
		}
	}
}

func TestFilter_EmptyTable(t *testing.T) {
	for _, tbl := range []*dwd.Table{{}, nil} {
		got := Filter(tbl, models.TempMax, "0503")
		want := Series{{PlaceholderYear, missing}}
		if !seriesEqual(got, want) {
			t.Errorf("Filter(empty) = %v, want %v", got, want)
		}
	}
}

func TestFilter_MissingColumn(t *testing.T) {
	tbl := mustTable(t, "MESS_DATUM;TXK\n20200503;1.0\n")
	got := Filter(tbl, models.Humidity, "0503")
	want := Series{{"2020", missing}}
	if !seriesEqual(got, want) {
		t.Errorf("Filter = %v, want %v", got, want)
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name   string
		inputs []Series
		want   Series
	}{
		{
			name: "disjoint years keep values",
			inputs: []Series{
				{{"2001", v(1)}, {"2002", v(2)}},
				{{"2004", v(4)}},
			},
			want: Series{{"2001", v(1)}, {"2002", v(2)}, {"2003", missing}, {"2004", v(4)}},
		},
		{
			name: "overlap averages",
			inputs: []Series{
				{{"2010", v(10)}, {"2011", v(20)}},
				{{"2010", v(20)}, {"2011", missing}},
			},
			want: Series{{"2010", v(15)}, {"2011", v(20)}},
		},
		{
			name: "all missing stays missing",
			inputs: []Series{
				{{"2010", missing}},
				{{"2010", missing}},
			},
			want: Series{{"2010", missing}},
		},
		{
			name: "unsorted input",
			inputs: []Series{
				{{"2005", v(5)}, {"2003", v(3)}},
			},
			want: Series{{"2003", v(3)}, {"2004", missing}, {"2005", v(5)}},
		},
		{
			name:   "placeholder contributes its year",
			inputs: []Series{{{PlaceholderYear, missing}}, {{"2019", v(1)}}},
			want:   Series{{"2019", v(1)}, {"2020", missing}},
		},
		{
			name:   "no input",
			inputs: nil,
			want:   Series{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.inputs...)
			if !seriesEqual(got, tt.want) {
				t.Errorf("Merge = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeries_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Series{{"2019", v(1.5)}, {"2020", missing}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"values":[1.5,null],"index":["2019","2020"]}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}
