package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	soltx "github.com/rovshanmuradov/txdispatch/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/txdispatch/internal/bot"
	"github.com/rovshanmuradov/txdispatch/internal/dispatch"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ParseFormat maps a file extension or flag value to a format.
func ParseFormat(s string) (ExportFormat, error) {
	switch s {
	case "csv", ".csv":
		return FormatCSV, nil
	case "json", ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", s)
	}
}

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format      ExportFormat
	OnlySuccess bool // only transfers that finished without error
	// Path is the output file. When empty a timestamped name is generated in OutputDir.
	Path      string
	OutputDir string
}

// Record - одна строка отчета о пакете.
type Record struct {
	Name      string          `json:"name"`
	Recipient string          `json:"recipient"`
	AmountSOL decimal.Decimal `json:"amount_sol"`
	Signature string          `json:"signature,omitempty"`
	State     string          `json:"state"`
	Slot      uint64          `json:"slot,omitempty"`
	Elapsed   time.Duration   `json:"elapsed_ns"`
	Error     string          `json:"error,omitempty"`
}

// Success is true when the dispatch returned no error.
func (r Record) Success() bool { return r.Error == "" }

func csvHeaders() []string {
	return []string{"name", "recipient", "amount_sol", "signature", "state", "slot", "elapsed_ms", "error"}
}

func (r Record) toCSV() []string {
	slot := ""
	if r.Slot > 0 {
		slot = strconv.FormatUint(r.Slot, 10)
	}
	return []string{
		r.Name,
		r.Recipient,
		r.AmountSOL.String(),
		r.Signature,
		r.State,
		slot,
		strconv.FormatInt(r.Elapsed.Milliseconds(), 10),
		r.Error,
	}
}

// NewRecord flattens one batch result.
func NewRecord(res bot.BatchResult) Record {
	rec := Record{State: "not_sent"}
	if res.Transfer != nil {
		rec.Name = res.Transfer.Name
		rec.Recipient = res.Transfer.Recipient.String()
		rec.AmountSOL = dispatch.LamportsToSOL(res.Transfer.Lamports)
	}
	if res.Result != nil {
		if !res.Result.Signature.IsZero() {
			rec.Signature = res.Result.Signature.String()
		}
		rec.State = res.Result.State.String()
		rec.Slot = res.Result.Slot
		rec.Elapsed = res.Result.Elapsed
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

// ResultExporter writes batch reports to disk.
type ResultExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewResultExporter(logger *zap.Logger) *ResultExporter {
	return &ResultExporter{
		logger: logger.Named("export"),
		now:    time.Now,
	}
}

// ExportResults writes the batch to a file and returns its path.
func (e *ResultExporter) ExportResults(results []bot.BatchResult, options ExportOptions) (string, error) {
	records := e.filterRecords(results, options)
	if len(records) == 0 {
		return "", errors.New("no results match the export criteria")
	}

	outputPath := options.Path
	if outputPath == "" {
		outputPath = filepath.Join(options.OutputDir, e.generateFilename(options))
	}
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = e.exportToCSV(records, outputPath)
	case FormatJSON:
		err = e.exportToJSON(records, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	e.logger.Info("Batch report exported",
		zap.String("file", outputPath),
		zap.Int("count", len(records)),
		zap.String("format", string(options.Format)))
	return outputPath, nil
}

func (e *ResultExporter) filterRecords(results []bot.BatchResult, options ExportOptions) []Record {
	var records []Record
	for _, res := range results {
		rec := NewRecord(res)
		if options.OnlySuccess && !rec.Success() {
			continue
		}
		records = append(records, rec)
	}
	return records
}

func (e *ResultExporter) generateFilename(options ExportOptions) string {
	prefix := "batch_all"
	if options.OnlySuccess {
		prefix = "batch_success"
	}
	return fmt.Sprintf("%s_%s.%s", prefix, e.now().Format("20060102_150405"), options.Format)
}

func (e *ResultExporter) exportToCSV(records []Record, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, rec := range records {
		if err := writer.Write(rec.toCSV()); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (e *ResultExporter) exportToJSON(records []Record, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time     `json:"export_time"`
		Count      int           `json:"count"`
		Summary    ExportSummary `json:"summary"`
		Results    []Record      `json:"results"`
	}{
		ExportTime: e.now(),
		Count:      len(records),
		Summary:    Summarize(records),
		Results:    records,
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportSummary contains summary statistics for an exported batch
type ExportSummary struct {
	Total      int             `json:"total"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Confirmed  int             `json:"confirmed"`
	TimedOut   int             `json:"timed_out"`
	SentSOL    decimal.Decimal `json:"sent_sol"`
	AvgElapsed time.Duration   `json:"avg_elapsed_ns"`
}

// Summarize aggregates records. SentSOL counts confirmed transfers only.
func Summarize(records []Record) ExportSummary {
	summary := ExportSummary{Total: len(records), SentSOL: decimal.Zero}
	var elapsed time.Duration

	for _, rec := range records {
		if rec.Success() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		switch rec.State {
		case soltx.StateConfirmed.String():
			summary.Confirmed++
			summary.SentSOL = summary.SentSOL.Add(rec.AmountSOL)
		case soltx.StateTimedOut.String():
			summary.TimedOut++
		}
		elapsed += rec.Elapsed
	}

	if len(records) > 0 {
		summary.AvgElapsed = elapsed / time.Duration(len(records))
	}
	return summary
}
