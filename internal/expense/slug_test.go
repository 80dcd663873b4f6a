package expense

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Food":              "food",
		"  Eating Out  ":    "eating-out",
		"Books & Supplies!": "books-supplies",
		"--bus--fare--":     "bus-fare",
		"Café 2":            "café-2",
		"!!!":               "",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}
