package scraper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finlit-rag/internal/articles"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://example.com/a", "https://example.com/a"},
		{"  http://example.com  ", "http://example.com"},
		{"https//example.com", "https://example.com"},
		{"http:/example.com", "http://example.com"},
		{"httpsin://example.com", "https://example.com"},
		{"HTTPSIN://example.com", "https://example.com"},
		{"www.example.com", "https://www.example.com"},
		{"example.com/x", "https://example.com/x"},
		{"HTTPS://Example.com", "HTTPS://Example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestTargetsFromCatalog(t *testing.T) {
	targets := TargetsFromCatalog(articles.MustDefault().ScrapeTargets())
	require.NotEmpty(t, targets)
	assert.Equal(t, Target{
		Name: "smart budgeting technique",
		URL:  "https://www.kwsp.gov.my/w/infographic/smart-budgeting-technique",
	}, targets[0])
}

type fakePrinter struct {
	pages map[string][]byte
	calls []string
	err   error
}

func (f *fakePrinter) PrintPDF(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.pages[url]
	if !ok {
		return nil, errors.New("navigate: net::ERR_NAME_NOT_RESOLVED")
	}
	return b, nil
}

func TestRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "pdfs")
	printer := &fakePrinter{pages: map[string][]byte{
		"https://a.example/one": []byte("%PDF-1.4 one"),
		"https://a.example/two": {},
	}}
	targets := []Target{
		{Name: "first one", URL: "https//a.example/one"},
		{Name: "missing", URL: "https://a.example/404"},
		{Name: "empty.PDF", URL: "a.example/two"},
	}

	summary, err := New(printer).Run(context.Background(), targets, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/one", "https://a.example/404", "https://a.example/two"}, printer.calls)

	require.Len(t, summary.Saved, 1)
	assert.Equal(t, filepath.Join(out, "first one.pdf"), summary.Saved[0].Path)
	b, err := os.ReadFile(summary.Saved[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 one", string(b))

	require.Len(t, summary.Failed, 2)
	assert.Contains(t, summary.Failed[0].Error, "ERR_NAME_NOT_RESOLVED")
	assert.Equal(t, "empty pdf", summary.Failed[1].Error)
	assert.NoFileExists(t, filepath.Join(out, "empty.PDF"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	printer := &fakePrinter{}
	_, err := New(printer).Run(ctx, []Target{{Name: "a", URL: "https://a.example"}}, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, printer.calls)
}

func TestRun_CanceledPrintAborts(t *testing.T) {
	printer := &fakePrinter{err: context.Canceled}
	targets := []Target{{Name: "a", URL: "https://a.example"}, {Name: "b", URL: "https://b.example"}}
	_, err := New(printer).Run(context.Background(), targets, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, printer.calls, 1)
}

func TestPdfName(t *testing.T) {
	assert.Equal(t, "buy vs rent.pdf", pdfName("buy vs rent"))
	assert.Equal(t, "a_b.pdf", pdfName("a/b"))
	assert.Equal(t, "done.PDF", pdfName("done.PDF"))
}

func TestSleep(t *testing.T) {
	assert.NoError(t, sleep(context.Background(), 0))
	assert.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}
