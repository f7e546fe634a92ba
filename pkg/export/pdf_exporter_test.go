package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderProducesPDF(t *testing.T) {
	out, err := NewPDFExporter().Render(Document{
		Title:   "Coach change",
		Summary: []Field{{Label: "Status", Value: "APPROVED"}},
		Tables: []Table{{
			Caption: "Stages",
			Data: Dataset{
				Headers: []string{"Stage", "Decision"},
				Rows:    []map[string]string{{"Stage": "CURRENT_COACH", "Decision": "APPROVED"}},
			},
		}},
		Footer: "generated",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRejectsEmptyDocument(t *testing.T) {
	_, err := NewPDFExporter().Render(Document{Title: "empty"})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 47.5))
	long := strings.Repeat("x", 60)
	got := truncate(long, 47.5)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, got, 26)
}
