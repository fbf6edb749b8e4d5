package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLog(t *testing.T) *Log {
	t.Helper()
	return NewLog(filepath.Join(t.TempDir(), "log.csv"))
}

func readRows(t *testing.T, l *Log) [][]string {
	t.Helper()
	f, err := os.Open(l.Path())
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestEnsureInitialized(t *testing.T) {
	l := tempLog(t)

	require.NoError(t, l.EnsureInitialized())

	rows := readRows(t, l)
	require.Len(t, rows, 1)
	assert.Equal(t, header, rows[0])
}

func TestEnsureInitializedNeverOverwrites(t *testing.T) {
	l := tempLog(t)
	require.NoError(t, l.EnsureInitialized())
	require.NoError(t, l.Append(Outcome{URL: "https://host/media/1/large", Success: true, Attempts: 1}))

	// A second initialization must leave the existing row alone
	require.NoError(t, l.EnsureInitialized())

	rows := readRows(t, l)
	assert.Len(t, rows, 2)
}

func TestAppendWritesOneRow(t *testing.T) {
	l := tempLog(t)
	require.NoError(t, l.EnsureInitialized())

	err := l.Append(Outcome{
		URL:        "https://host/media/42/large?u=2023-05-01T10:00:00",
		Success:    true,
		Attempts:   1,
		HTTPStatus: 200,
		MediaID:    "42",
		Variant:    "large",
		Filename:   "42_large.jpg",
		Timestamp:  time.Date(2023, 5, 1, 10, 30, 0, 0, time.Local),
	})
	require.NoError(t, err)

	rows := readRows(t, l)
	require.Len(t, rows, 2)

	row := rows[1]
	assert.Equal(t, "2023-05-01T10:30:00", row[0])
	assert.Equal(t, StatusSuccess, row[1])
	assert.Equal(t, "1", row[2])
	assert.Equal(t, "200", row[3])
	assert.Equal(t, "42", row[4])
	assert.Equal(t, "large", row[5])
	assert.Equal(t, "42_large.jpg", row[6])
	assert.Equal(t, "https://host/media/42/large?u=2023-05-01T10:00:00", row[7])
	assert.Equal(t, "", row[8])
}

func TestAppendFailureRow(t *testing.T) {
	l := tempLog(t)
	require.NoError(t, l.EnsureInitialized())

	err := l.Append(Outcome{
		URL:          "https://host/media/9/large",
		Success:      false,
		Attempts:     5,
		HTTPStatus:   503,
		ErrorMessage: "HTTP 503",
	})
	require.NoError(t, err)

	rows := readRows(t, l)
	row := rows[1]
	assert.Equal(t, StatusFailed, row[1])
	assert.Equal(t, "5", row[2])
	assert.Equal(t, "503", row[3])
	assert.Equal(t, "HTTP 503", row[8])
}

func TestAppendNoHTTPStatusIsEmpty(t *testing.T) {
	l := tempLog(t)
	require.NoError(t, l.EnsureInitialized())
	require.NoError(t, l.Append(Outcome{URL: "https://host/x", Success: false, Attempts: 5, ErrorMessage: "network error"}))

	rows := readRows(t, l)
	assert.Equal(t, "", rows[1][3])
}

func TestConcurrentAppends(t *testing.T) {
	l := tempLog(t)
	require.NoError(t, l.EnsureInitialized())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := l.Append(Outcome{
				URL:      fmt.Sprintf("https://host/media/%d/large", i),
				Success:  i%2 == 0,
				Attempts: 1,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Exactly n well-formed rows, regardless of completion order
	rows := readRows(t, l)
	require.Len(t, rows, n+1)
	for _, row := range rows {
		assert.Len(t, row, len(header))
	}
}

func TestFailingURLsLastStatusWins(t *testing.T) {
	l := tempLog(t)
	require.NoError(t, l.EnsureInitialized())

	urlA := "https://host/media/1/large"
	urlB := "https://host/media/2/large"
	urlC := "https://host/media/3/large"

	// A fails then succeeds on a later run; B fails twice; C only succeeds
	require.NoError(t, l.Append(Outcome{URL: urlA, Success: false, Attempts: 5}))
	require.NoError(t, l.Append(Outcome{URL: urlB, Success: false, Attempts: 5}))
	require.NoError(t, l.Append(Outcome{URL: urlC, Success: true, Attempts: 1}))
	require.NoError(t, l.Append(Outcome{URL: urlA, Success: true, Attempts: 2}))
	require.NoError(t, l.Append(Outcome{URL: urlB, Success: false, Attempts: 5}))

	failing, err := l.FailingURLs()
	require.NoError(t, err)

	// A recovered, so only B remains; order is first-seen
	assert.Equal(t, []string{urlB}, failing)
}

func TestFailingURLsDeduplicatesPreservingOrder(t *testing.T) {
	l := tempLog(t)
	require.NoError(t, l.EnsureInitialized())

	for _, url := range []string{"https://host/b", "https://host/a", "https://host/b"} {
		require.NoError(t, l.Append(Outcome{URL: url, Success: false, Attempts: 5}))
	}

	failing, err := l.FailingURLs()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://host/b", "https://host/a"}, failing)
}

func TestFailingURLsMissingFile(t *testing.T) {
	l := tempLog(t)

	failing, err := l.FailingURLs()
	require.NoError(t, err)
	assert.Empty(t, failing)
}
