package off

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foodscan/foodscan/internal/domain"
)

const sampleResponse = `{
	"status": 1,
	"product": {
		"code": "4001234567890",
		"product_name": "Cola Drink",
		"brands": "Acme",
		"image_front_url": "https://img.example/front.jpg",
		"ingredients_text": "water, sugar, E150d, caffeine",
		"ingredients_analysis_tags": ["en:palm-oil-free", "en:vegan", "en:vegetarian"],
		"allergens_tags": ["en:milk"],
		"traces_tags": ["en:nuts", "en:soybeans"],
		"additives_tags": ["en:e150d", "en:e338"],
		"nutriscore_grade": "e",
		"ecoscore_grade": "b",
		"ecoscore_score": 71.0
	}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(domain.ProductSourceConfig{
		BaseURL:    srv.URL,
		UserAgent:  "foodscan-test/1.0",
		TimeoutSec: 5,
	}, nil)
	return client, srv
}

func TestFetchProduct(t *testing.T) {
	var gotPath, gotUA, gotFields string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		gotFields = r.URL.Query().Get("fields")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResponse))
	})

	p, err := client.FetchProduct(context.Background(), "4001234567890")
	if err != nil {
		t.Fatalf("FetchProduct: %v", err)
	}

	if gotPath != "/api/v2/product/4001234567890.json" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotUA != "foodscan-test/1.0" {
		t.Errorf("user agent = %q", gotUA)
	}
	if gotFields == "" || gotFields != requestFields {
		t.Errorf("fields param = %q", gotFields)
	}

	if p.Name != "Cola Drink" || p.Brand != "Acme" {
		t.Errorf("name/brand = %q/%q", p.Name, p.Brand)
	}
	wantAdditives := []string{"E150D", "E338"}
	if len(p.Additives) != len(wantAdditives) {
		t.Fatalf("additives = %v", p.Additives)
	}
	for i, a := range wantAdditives {
		if p.Additives[i] != a {
			t.Errorf("additives[%d] = %q, want %q", i, p.Additives[i], a)
		}
	}
	if len(p.Allergens) != 1 || p.Allergens[0] != "milk" {
		t.Errorf("allergens = %v", p.Allergens)
	}
	if len(p.Traces) != 2 || p.Traces[1] != "soybeans" {
		t.Errorf("traces = %v", p.Traces)
	}
	if len(p.Analysis) != 3 || p.Analysis[0] != "palm oil free" {
		t.Errorf("analysis = %v", p.Analysis)
	}
	if v := p.DietFlags["vegan"]; v == nil || !*v {
		t.Errorf("vegan flag = %v, want true", v)
	}
	if p.NutriScoreGrade != "e" || p.EcoScoreGrade != "b" {
		t.Errorf("grades = %q/%q", p.NutriScoreGrade, p.EcoScoreGrade)
	}
	if p.EcoScoreScore == nil || *p.EcoScoreScore != 71.0 {
		t.Errorf("eco score = %v", p.EcoScoreScore)
	}
}

func TestFetchProductNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchProduct(context.Background(), "0000000000000")
	if !errors.Is(err, ErrProductNotFound) {
		t.Errorf("err = %v, want ErrProductNotFound", err)
	}
}

func TestFetchProductEmptyBodyIsNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": 0, "product": {}}`))
	})

	_, err := client.FetchProduct(context.Background(), "123")
	if !errors.Is(err, ErrProductNotFound) {
		t.Errorf("err = %v, want ErrProductNotFound", err)
	}
}

func TestFetchProductServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := client.FetchProduct(context.Background(), "123")
	if err == nil || errors.Is(err, ErrProductNotFound) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestToENumber(t *testing.T) {
	cases := map[string]string{
		"e150d":    "E150D",
		"e338":     "E338",
		"E322i":    "E322I",
		"caffeine": "CAFFEINE",
		"":         "",
	}
	for in, want := range cases {
		if got := toENumber(in); got != want {
			t.Errorf("toENumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDietFlags(t *testing.T) {
	flags := dietFlags([]string{"non-vegan", "vegetarian"})
	if v := flags["vegan"]; v == nil || *v {
		t.Errorf("vegan = %v, want false", v)
	}
	if v := flags["vegetarian"]; v == nil || !*v {
		t.Errorf("vegetarian = %v, want true", v)
	}

	flags = dietFlags(nil)
	if flags["vegan"] != nil || flags["vegetarian"] != nil {
		t.Errorf("expected unknown flags, got %v", flags)
	}
}
