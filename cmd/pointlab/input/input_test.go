package input

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pointlab/pointlab/internal/cluster"
)

func TestRead(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		in      string
		want    []cluster.Point
		wantErr bool
	}{
		{
			name:   "json pairs",
			format: FormatJSON,
			in:     `[[1, 2], [3.5, -4]]`,
			want:   []cluster.Point{{X: 1, Y: 2}, {X: 3.5, Y: -4}},
		},
		{
			name:   "csv with header",
			format: FormatCSV,
			in:     "x,y\n1,2\n 3.5, -4\n",
			want:   []cluster.Point{{X: 1, Y: 2}, {X: 3.5, Y: -4}},
		},
		{
			name:   "csv without header",
			format: FormatCSV,
			in:     "0,0\n10,10\n",
			want:   []cluster.Point{{X: 0, Y: 0}, {X: 10, Y: 10}},
		},
		{name: "json wrong arity", format: FormatJSON, in: `[[1, 2, 3]]`, wantErr: true},
		{name: "json garbage", format: FormatJSON, in: `{`, wantErr: true},
		{name: "csv wrong columns", format: FormatCSV, in: "1,2,3\n", wantErr: true},
		{name: "csv bad row", format: FormatCSV, in: "1,2\nfoo,bar\n", wantErr: true},
		{name: "empty json", format: FormatJSON, in: `[]`, wantErr: true},
		{name: "header only", format: FormatCSV, in: "x,y\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(strings.NewReader(tt.in), tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("point %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "points.CSV")
	if err := os.WriteFile(csvPath, []byte("1,1\n2,2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	points, err := ReadFile(csvPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("expected 2 points, got %d", len(points))
	}

	emptyPath := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(emptyPath, []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(emptyPath); !errors.Is(err, ErrNoPoints) {
		t.Errorf("expected ErrNoPoints, got %v", err)
	}

	if _, err := ReadFile(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}

func TestFormatFor(t *testing.T) {
	if FormatFor("a.csv") != FormatCSV || FormatFor("a.json") != FormatJSON || FormatFor("a") != FormatJSON {
		t.Error("unexpected format detection")
	}
}
