package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/buyerd/internal/logging"
)

// HTTPSearcherConfig configures the shopping-API search adapter.
type HTTPSearcherConfig struct {
	// BaseURL is the search endpoint, e.g. https://serpapi.com/search.json.
	BaseURL string
	APIKey  string
	// Country and Language are passed through as gl/hl query parameters.
	Country  string
	Language string
}

// HTTPSearcher shapes a google-shopping-style JSON response into rows.
type HTTPSearcher struct {
	config HTTPSearcherConfig
	client *http.Client
	logger *logging.Logger
}

// NewHTTPSearcher creates a search adapter for a shopping results API.
func NewHTTPSearcher(cfg HTTPSearcherConfig, client *http.Client, logger *logging.Logger) (*HTTPSearcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HTTPSearcher{config: cfg, client: client, logger: logger.Named("catalog")}, nil
}

// shoppingResponse mirrors the relevant slice of the API payload.
type shoppingResponse struct {
	ShoppingResults []shoppingItem `json:"shopping_results"`
}

type shoppingItem struct {
	Title          string  `json:"title"`
	Price          string  `json:"price"`
	ExtractedPrice float64 `json:"extracted_price"`
	Source         string  `json:"source"`
	ProductLink    string  `json:"product_link"`
	Rating         float64 `json:"rating"`
	Reviews        int     `json:"reviews"`
	Thumbnail      string  `json:"thumbnail"`
}

// Search queries the shopping API and returns usable rows. Items missing a
// title or a numeric price are dropped. An empty slice is not an error.
func (s *HTTPSearcher) Search(ctx context.Context, keywords []string) ([]ProductRow, error) {
	q := url.Values{}
	q.Set("engine", "google_shopping")
	q.Set("q", strings.Join(keywords, " "))
	if s.config.Country != "" {
		q.Set("gl", s.config.Country)
	}
	if s.config.Language != "" {
		q.Set("hl", s.config.Language)
	}
	if s.config.APIKey != "" {
		q.Set("api_key", s.config.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog search: unexpected status %d", resp.StatusCode)
	}

	var payload shoppingResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	rows := make([]ProductRow, 0, len(payload.ShoppingResults))
	for _, item := range payload.ShoppingResults {
		if item.Title == "" || item.ExtractedPrice <= 0 {
			continue
		}
		rows = append(rows, ProductRow{
			ID:      NewRowID(),
			Title:   item.Title,
			Price:   item.Price,
			Amount:  item.ExtractedPrice,
			Rating:  item.Rating,
			Reviews: item.Reviews,
			Source:  item.Source,
			Link:    item.ProductLink,
			Image:   item.Thumbnail,
		})
	}

	s.logger.Debug(ctx, "catalog search complete",
		zap.Strings("keywords", keywords),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}
