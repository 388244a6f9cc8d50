package progress

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestLogger_AppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log_file.txt")
	l := New(path, "")
	l.now = fixedClock(time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC))

	l.Log("ETL Job Started")
	l.Log("Extract phase Started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "2024-Mar-05-14:07:09,ETL Job Started\n2024-Mar-05-14:07:09,Extract phase Started\n", string(data))
}

func TestLogger_CustomSeparatorKeepsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "code_log.txt")
	require.NoError(t, os.WriteFile(path, []byte("earlier\n"), 0o644))

	l := New(path, " : ")
	l.now = fixedClock(time.Date(2023, time.December, 31, 23, 59, 0, 0, time.UTC))
	l.Log("Process Complete")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "earlier\n2023-Dec-31-23:59:00 : Process Complete\n", string(data))
}

func TestLogger_WriteFailureIsReported(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	// the log path is an existing directory
	l := New(t.TempDir(), ",")
	require.NotPanics(t, func() { l.Log("ETL Job Started") })
	require.Contains(t, buf.String(), "progress log write failed")
}
