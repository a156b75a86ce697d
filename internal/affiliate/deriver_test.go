package affiliate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	d := NewDeriver(Tags{FlipkartID: "fkaff", AmazonTag: "amz-21"})

	cases := []struct {
		in, want string
	}{
		{"https://www.flipkart.com/x/p/itm1?pid=MOB1", "https://www.flipkart.com/x/p/itm1?pid=MOB1&affid=fkaff"},
		{"https://dl.flipkart.com/s/abc", "https://dl.flipkart.com/s/abc?affid=fkaff"},
		{"https://www.flipkart.com/x?affid=someoneelse", "https://www.flipkart.com/x?affid=someoneelse"},
		{"https://www.flipkart.com/x?affid=", "https://www.flipkart.com/x?affid="},
		{"https://www.amazon.in/dp/B0CHX1W1XY", "https://www.amazon.in/dp/B0CHX1W1XY?tag=amz-21"},
		{"https://smile.amazon.com/dp/B0CHX1W1XY?th=1", "https://smile.amazon.com/dp/B0CHX1W1XY?th=1&tag=amz-21"},
		{"https://notflipkart.com/x", "https://notflipkart.com/x"},
		{"https://example.com/p/1", "https://example.com/p/1"},
		{"not a url", "not a url"},
		{"", ""},
		{"%%%", "%%%"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, d.Derive(tc.in), tc.in)
	}
}

func TestDeriveWithoutIdentifiers(t *testing.T) {
	d := NewDeriver(Tags{})
	in := "https://www.flipkart.com/x/p/itm1"
	assert.Equal(t, in, d.Derive(in))

	var nilDeriver *Deriver
	assert.Equal(t, in, nilDeriver.Derive(in))
}

func TestDeriveIsIdempotent(t *testing.T) {
	d := NewDeriver(Tags{FlipkartID: "fkaff"})
	once := d.Derive("https://www.flipkart.com/x/p/itm1")
	assert.Equal(t, once, d.Derive(once))
}
