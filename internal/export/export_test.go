package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	soltx "github.com/rovshanmuradov/txdispatch/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/txdispatch/internal/bot"
	"github.com/rovshanmuradov/txdispatch/internal/dispatch"
	"github.com/rovshanmuradov/txdispatch/internal/task"
)

func generateTestResults(t *testing.T) []bot.BatchResult {
	t.Helper()
	recipient := solana.NewWallet().PublicKey()

	newTransfer := func(name, amount string) *task.Transfer {
		tr, err := task.NewTransfer(name, recipient, decimal.RequireFromString(amount))
		require.NoError(t, err)
		return tr
	}

	return []bot.BatchResult{
		{
			Transfer: newTransfer("rent", "0.5"),
			Result: &dispatch.Result{
				Signature: solana.Signature{1},
				State:     soltx.StateConfirmed,
				Slot:      1200,
				Elapsed:   800 * time.Millisecond,
			},
		},
		{
			Transfer: newTransfer("tip", "0.25"),
			Result: &dispatch.Result{
				Signature: solana.Signature{2},
				State:     soltx.StateConfirmed,
				Slot:      1201,
				Elapsed:   400 * time.Millisecond,
			},
		},
		{
			Transfer: newTransfer("slow", "1"),
			Result: &dispatch.Result{
				Signature: solana.Signature{3},
				State:     soltx.StateTimedOut,
				Elapsed:   1800 * time.Millisecond,
			},
			Err: errors.New("during confirmation: timed out"),
		},
		{
			Transfer: newTransfer("broke", "2"),
			Err:      errors.New("during submission: insufficient funds"),
		},
	}
}

func newTestExporter(t *testing.T) *ResultExporter {
	e := NewResultExporter(zaptest.NewLogger(t))
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }
	return e
}

func TestExportResultsCSV(t *testing.T) {
	exporter := newTestExporter(t)
	dir := t.TempDir()

	path, err := exporter.ExportResults(generateTestResults(t), ExportOptions{Format: FormatCSV, OutputDir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "batch_all_20260301_123000.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, csvHeaders(), rows[0])

	assert.Equal(t, "rent", rows[1][0])
	assert.Equal(t, "0.5", rows[1][2])
	assert.Equal(t, "confirmed", rows[1][4])
	assert.Equal(t, "1200", rows[1][5])
	assert.Equal(t, "800", rows[1][6])
	assert.Empty(t, rows[1][7])

	assert.Equal(t, "broke", rows[4][0])
	assert.Equal(t, "not_sent", rows[4][4])
	assert.Empty(t, rows[4][3])
	assert.Contains(t, rows[4][7], "insufficient funds")
}

func TestExportResultsJSON(t *testing.T) {
	exporter := newTestExporter(t)
	path := filepath.Join(t.TempDir(), "reports", "out.json")

	got, err := exporter.ExportResults(generateTestResults(t), ExportOptions{Format: FormatJSON, Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, got)

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var report struct {
		Count   int           `json:"count"`
		Summary ExportSummary `json:"summary"`
		Results []Record      `json:"results"`
	}
	require.NoError(t, json.Unmarshal(content, &report))
	assert.Equal(t, 4, report.Count)
	assert.Len(t, report.Results, 4)
	assert.Equal(t, 2, report.Summary.Confirmed)
	assert.True(t, decimal.RequireFromString("0.75").Equal(report.Summary.SentSOL))
}

func TestExportResultsOnlySuccess(t *testing.T) {
	exporter := newTestExporter(t)
	dir := t.TempDir()

	path, err := exporter.ExportResults(generateTestResults(t), ExportOptions{
		Format:      FormatCSV,
		OnlySuccess: true,
		OutputDir:   dir,
	})
	require.NoError(t, err)
	assert.Equal(t, "batch_success_20260301_123000.csv", filepath.Base(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestExportResultsErrors(t *testing.T) {
	exporter := newTestExporter(t)

	_, err := exporter.ExportResults(nil, ExportOptions{Format: FormatCSV, OutputDir: t.TempDir()})
	assert.ErrorContains(t, err, "no results")

	_, err = exporter.ExportResults(generateTestResults(t), ExportOptions{Format: "xml", OutputDir: t.TempDir()})
	assert.ErrorContains(t, err, "unsupported format")
}

func TestSummarize(t *testing.T) {
	records := make([]Record, 0, 4)
	for _, res := range generateTestResults(t) {
		records = append(records, NewRecord(res))
	}

	summary := Summarize(records)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 2, summary.Confirmed)
	assert.Equal(t, 1, summary.TimedOut)
	assert.True(t, decimal.RequireFromString("0.75").Equal(summary.SentSOL))
	assert.Equal(t, 750*time.Millisecond, summary.AvgElapsed)

	assert.Equal(t, ExportSummary{SentSOL: decimal.Zero}, Summarize(nil))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(".json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}
