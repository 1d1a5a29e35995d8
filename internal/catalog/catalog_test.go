package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   float64
		wantOK bool
	}{
		{"rupee symbol with comma", "₹2,899", 2899, true},
		{"rs prefix", "Rs. 1,299.50", 1299.50, true},
		{"dollar", "$499", 499, true},
		{"plain number", "42000", 42000, true},
		{"empty", "", 0, false},
		{"no digits", "N/A", 0, false},
		{"zero", "₹0", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRowID_Unique(t *testing.T) {
	a := NewRowID()
	b := NewRowID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "prod_")
}

func TestHTTPSearcher_ShapesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "google_shopping", r.URL.Query().Get("engine"))
		assert.Equal(t, "wireless mouse", r.URL.Query().Get("q"))
		w.Write([]byte(`{"shopping_results": [
			{"title": "Logi M185", "price": "₹1,195", "extracted_price": 1195, "source": "amazon", "rating": 4.4, "reviews": 8211, "product_link": "https://example.com/m185", "thumbnail": "https://example.com/m185.jpg"},
			{"title": "", "price": "₹999", "extracted_price": 999, "source": "flipkart"},
			{"title": "No price listed", "price": "", "extracted_price": 0, "source": "croma"}
		]}`))
	}))
	defer srv.Close()

	searcher, err := NewHTTPSearcher(HTTPSearcherConfig{BaseURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	rows, err := searcher.Search(context.Background(), []string{"wireless", "mouse"})
	require.NoError(t, err)
	require.Len(t, rows, 1, "rows without title or price are dropped")

	row := rows[0]
	assert.Equal(t, "Logi M185", row.Title)
	assert.Equal(t, 1195.0, row.Amount)
	assert.Equal(t, 4.4, row.Rating)
	assert.Equal(t, 8211, row.Reviews)
	assert.NotEmpty(t, row.ID)
}

func TestHTTPSearcher_EmptyResultIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"shopping_results": []}`))
	}))
	defer srv.Close()

	searcher, err := NewHTTPSearcher(HTTPSearcherConfig{BaseURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	rows, err := searcher.Search(context.Background(), []string{"unobtainium"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestHTTPSearcher_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	searcher, err := NewHTTPSearcher(HTTPSearcherConfig{BaseURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), []string{"mouse"})
	require.Error(t, err)
}

func TestNewHTTPSearcher_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPSearcher(HTTPSearcherConfig{}, nil, nil)
	require.Error(t, err)
}
