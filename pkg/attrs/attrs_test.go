package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type label string

func (l label) String() string { return "label:" + string(l) }

func TestExtractString(t *testing.T) {
	attributes := []any{
		"document_type", label("photo"),
		"status", "pending",
		"count", 3,
		42, "ignored",
		"dangling",
	}

	assert.Equal(t, "label:photo", ExtractString(attributes, "document_type"))
	assert.Equal(t, "pending", ExtractString(attributes, "status"))
	assert.Empty(t, ExtractString(attributes, "count"))
	assert.Empty(t, ExtractString(attributes, "missing"))
	assert.Empty(t, ExtractString(attributes, "dangling"))
	assert.Empty(t, ExtractString(nil, "status"))
}
