package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHTMLPrefersMetaTags(t *testing.T) {
	html := `<html><head>
		<title>Fallback title</title>
		<meta property="og:title" content="Boat Airdopes 141">
		<meta name="twitter:image" content="/img/airdopes.jpg">
	</head><body>
		<h1>Heading</h1>
		<div class="_30jeq3 _16Jk6d">₹1,299</div>
	</body></html>`

	got := ExtractHTML(html, "https://www.flipkart.com/boat/p/itm1")
	require.NotNil(t, got)
	assert.Equal(t, "Boat Airdopes 141", *got.Title)
	assert.Equal(t, "https://www.flipkart.com/img/airdopes.jpg", *got.Image)
	assert.Equal(t, 1299.0, *got.Price)
}

func TestExtractHTMLFallsBackToDOMAndRegex(t *testing.T) {
	html := `<html><head><title>Doc   title</title></head><body>
		<img src="//rukminim1.flixcart.com/image/x.jpeg">
		<p>Special offer today only Rs. 2,499.00 inclusive of taxes</p>
	</body></html>`

	got := ExtractHTML(html, "https://example.com/item")
	require.NotNil(t, got)
	assert.Equal(t, "Doc title", *got.Title)
	assert.Equal(t, "https://rukminim1.flixcart.com/image/x.jpeg", *got.Image)
	assert.Equal(t, 2499.0, *got.Price)
}

func TestExtractHTMLDataPriceAttribute(t *testing.T) {
	got := ExtractHTML(`<html><body><span data-price="749"></span></body></html>`, "")
	require.NotNil(t, got)
	assert.Nil(t, got.Title)
	assert.Equal(t, 749.0, *got.Price)
}

func TestExtractHTMLNothingFound(t *testing.T) {
	assert.Nil(t, ExtractHTML(`<html><body><p>nothing here</p></body></html>`, "https://example.com"))
	assert.Nil(t, ExtractHTML("", ""))
}
