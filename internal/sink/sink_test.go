package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/portal-scraper/internal/model"
)

func TestConsoleWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	ctx := context.Background()

	require.NoError(t, c.Emit(ctx, model.ScrapeResult{
		Portal: "indeed",
		URL:    "https://x/1",
		Status: model.StatusSuccess,
		Record: &model.JobRecord{URL: "https://x/1", Title: "Go", SourcePortal: "indeed"},
	}))
	require.NoError(t, c.Emit(ctx, model.ScrapeResult{
		Portal:  "indeed",
		URL:     "https://x/2",
		Status:  model.StatusFailed,
		Failure: &model.ScrapeFailure{URL: "https://x/2", Kind: "not_found", Message: "gone"},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first model.ScrapeResult
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "Go", first.Record.Title)
	assert.Contains(t, lines[1], `"kind":"not_found"`)
	assert.NotContains(t, lines[1], `"record"`)
}

type recordingSink struct {
	got []string
	err error
}

func (r *recordingSink) Emit(_ context.Context, res model.ScrapeResult) error {
	r.got = append(r.got, res.URL)
	return r.err
}

func (r *recordingSink) Close() error { return r.err }

func TestMultiDeliversToEverySink(t *testing.T) {
	broken := &recordingSink{err: errors.New("disk full")}
	ok := &recordingSink{}
	m := Multi{broken, ok}

	err := m.Emit(context.Background(), model.ScrapeResult{URL: "https://x/1"})
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, []string{"https://x/1"}, ok.got)
	assert.Equal(t, []string{"https://x/1"}, broken.got)
	assert.Error(t, m.Close())
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0, 20, 200))
	assert.Equal(t, 200, clampLimit(1000, 20, 200))
	assert.Equal(t, 50, clampLimit(50, 20, 200))
}
