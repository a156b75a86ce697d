package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fkURL = "https://www.flipkart.com/boat-airdopes/p/itm123?pid=ACCFZGAQJGYCYDCM"

func TestAffiliateAPIWithoutCredentialsMakesNoCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	p := NewAffiliateAPIProvider(srv.URL, "", "", time.Second, 100, nil)
	assert.False(t, p.Accepts(fkURL, "ACCFZGAQJGYCYDCM"))
	assert.Nil(t, p.Resolve(context.Background(), fkURL, "ACCFZGAQJGYCYDCM"))

	p = NewAffiliateAPIProvider(srv.URL, "aff", "tok", time.Second, 100, nil)
	assert.Nil(t, p.Resolve(context.Background(), fkURL, ""))
	assert.Equal(t, int32(0), hits.Load())
}

func TestAffiliateAPIAcceptsOnlyFlipkart(t *testing.T) {
	p := NewAffiliateAPIProvider("", "aff", "tok", time.Second, 1, nil)
	assert.True(t, p.Accepts(fkURL, "X"))
	assert.True(t, p.Accepts("https://dl.flipkart.com/s/abc", "X"))
	assert.False(t, p.Accepts("https://www.amazon.in/dp/B0CHX1W1XY", "B0CHX1W1XY"))
	assert.False(t, p.Accepts("https://notflipkart.com/p/itm1", "itm1"))
}

func TestAffiliateAPIFallsThroughEndpoints(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Path+"?"+r.URL.RawQuery)
		assert.Equal(t, "aff", r.Header.Get("Fk-Affiliate-Id"))
		assert.Equal(t, "tok", r.Header.Get("Fk-Affiliate-Token"))

		switch r.URL.Path {
		case "/affiliate/1.0/product.json":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"productBaseInfoV1": {
					"title": "  boAt Airdopes 141  ",
					"imageUrls": {"400x400": "https://img/400.jpg", "200x200": "https://img/200.jpg"},
					"maximumRetailPrice": {"amount": 4490, "currency": "INR"},
					"flipkartSellingPrice": {"amount": 1299, "currency": "INR"}
				}
			}`))
		}
	}))
	defer srv.Close()

	p := NewAffiliateAPIProvider(srv.URL, "aff", "tok", time.Second, 100, nil)
	got := p.Resolve(context.Background(), fkURL, "ACCFZGAQJGYCYDCM")

	require.NotNil(t, got)
	assert.Equal(t, "boAt Airdopes 141", *got.Title)
	assert.Equal(t, "https://img/200.jpg", *got.Image)
	assert.Equal(t, 1299.0, *got.Price)
	assert.Equal(t, []string{
		"/affiliate/1.0/product.json?id=ACCFZGAQJGYCYDCM",
		"/affiliate/product/json?id=ACCFZGAQJGYCYDCM",
	}, seen)
}

func TestAffiliateAPIPriceAndImageFallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"product": {
				"name": "Widget",
				"imageUrls": {"800x800": ["https://img/800.jpg"]},
				"mrp": {"value": "₹2,999"}
			}
		}`))
	}))
	defer srv.Close()

	got := NewAffiliateAPIProvider(srv.URL, "aff", "tok", time.Second, 100, nil).
		Resolve(context.Background(), fkURL, "X")
	require.NotNil(t, got)
	assert.Equal(t, "Widget", *got.Title)
	assert.Equal(t, "https://img/800.jpg", *got.Image)
	assert.Equal(t, 2999.0, *got.Price)
}

func TestAffiliateAPIFaultsBecomeNil(t *testing.T) {
	bodies := []string{`not json`, `{}`, `{"productBaseInfoV1": {"unrelated": true}}`}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		got := NewAffiliateAPIProvider(srv.URL, "aff", "tok", time.Second, 100, nil).
			Resolve(context.Background(), fkURL, "X")
		assert.Nil(t, got, body)
		srv.Close()
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	assert.Nil(t, NewAffiliateAPIProvider(srv.URL, "aff", "tok", time.Second, 100, nil).
		Resolve(context.Background(), fkURL, "X"))
}
