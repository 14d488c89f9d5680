// Package off fetches product payloads from the OpenFoodFacts API and
// maps them onto the internal product model.
package off

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foodscan/foodscan/internal/domain"
)

// ErrProductNotFound is returned when the source has no product for a
// barcode (HTTP 404 or an empty product object).
var ErrProductNotFound = errors.New("product not found")

// requestFields limits the response payload to the fields the assessment
// pipeline reads. Unlisted fields are large and volatile.
var requestFields = strings.Join([]string{
	"code",
	"product_name",
	"generic_name",
	"brands",
	"image_front_url",
	"ingredients_text",
	"ingredients_analysis_tags",
	"allergens_tags",
	"traces_tags",
	"additives_tags",
	"nutriscore_grade",
	"ecoscore_grade",
	"ecoscore_score",
}, ",")

// Client is an OpenFoodFacts API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client from product source settings.
func NewClient(cfg domain.ProductSourceConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// payload mirrors the subset of the v2 product response we consume.
type payload struct {
	Status  json.Number `json:"status"`
	Product struct {
		Code          string   `json:"code"`
		ProductName   string   `json:"product_name"`
		GenericName   string   `json:"generic_name"`
		Brands        string   `json:"brands"`
		ImageFrontURL string   `json:"image_front_url"`
		Ingredients   string   `json:"ingredients_text"`
		AnalysisTags  []string `json:"ingredients_analysis_tags"`
		AllergenTags  []string `json:"allergens_tags"`
		TraceTags     []string `json:"traces_tags"`
		AdditiveTags  []string `json:"additives_tags"`
		NutriScore    string   `json:"nutriscore_grade"`
		EcoGrade      string   `json:"ecoscore_grade"`
		EcoScore      *float64 `json:"ecoscore_score"`
	} `json:"product"`
}

// FetchProduct fetches one product by barcode.
func (c *Client) FetchProduct(ctx context.Context, barcode string) (*domain.Product, error) {
	u := fmt.Sprintf("%s/api/v2/product/%s.json?fields=%s",
		c.baseURL, url.PathEscape(barcode), url.QueryEscape(requestFields))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch product %s: %w", barcode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, barcode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("product source error %d: %s", resp.StatusCode, string(body))
	}

	var p payload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", barcode, err)
	}
	if p.Product.Code == "" && p.Product.ProductName == "" && len(p.Product.AdditiveTags) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, barcode)
	}

	product := mapProduct(barcode, &p)
	c.logger.Debug("product fetched",
		"barcode", barcode,
		"additives", len(product.Additives),
		"duration_ms", time.Since(start).Milliseconds())
	return product, nil
}

func mapProduct(barcode string, p *payload) *domain.Product {
	src := &p.Product

	name := src.ProductName
	if name == "" {
		name = src.GenericName
	}

	analysisTags := stripLang(src.AnalysisTags)
	analysis := make([]string, 0, len(analysisTags))
	for _, t := range analysisTags {
		analysis = append(analysis, strings.ReplaceAll(t, "-", " "))
	}

	additives := make([]string, 0, len(src.AdditiveTags))
	for _, t := range stripLang(src.AdditiveTags) {
		additives = append(additives, toENumber(t))
	}

	return &domain.Product{
		Barcode:         barcode,
		Name:            name,
		Brand:           src.Brands,
		ImageURL:        src.ImageFrontURL,
		IngredientsText: src.Ingredients,
		Allergens:       stripLang(src.AllergenTags),
		Traces:          stripLang(src.TraceTags),
		Additives:       additives,
		Analysis:        analysis,
		DietFlags:       dietFlags(analysisTags),
		NutriScoreGrade: src.NutriScore,
		EcoScoreGrade:   src.EcoGrade,
		EcoScoreScore:   src.EcoScore,
	}
}

// stripLang drops the language prefix from OFF tags: "en:e150d" -> "e150d".
func stripLang(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if i := strings.Index(t, ":"); i >= 0 {
			t = t[i+1:]
		}
		out = append(out, t)
	}
	return out
}

// toENumber converts an OFF additive tag to canonical form: "e150d" -> "E150D".
func toENumber(tag string) string {
	t := strings.TrimSpace(tag)
	if len(t) >= 2 && (t[0] == 'e' || t[0] == 'E') && t[1] >= '0' && t[1] <= '9' {
		return "E" + strings.ToUpper(t[1:])
	}
	return strings.ToUpper(t)
}

// dietFlags derives vegan/vegetarian flags from analysis tags. An absent
// pair of tags means unknown, which stays nil.
func dietFlags(analysisTags []string) map[string]*bool {
	tags := make(map[string]struct{}, len(analysisTags))
	for _, t := range analysisTags {
		tags[t] = struct{}{}
	}

	flag := func(yes, no string) *bool {
		if _, ok := tags[yes]; ok {
			v := true
			return &v
		}
		if _, ok := tags[no]; ok {
			v := false
			return &v
		}
		return nil
	}

	return map[string]*bool{
		"vegan":      flag("vegan", "non-vegan"),
		"vegetarian": flag("vegetarian", "non-vegetarian"),
	}
}
