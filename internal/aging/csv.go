package aging

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

// pesos formats amounts with grouping the way the printed collection
// sheets do (12,345.50).
var pesos = message.NewPrinter(language.English)

func formatAmount(v float64) string {
	return pesos.Sprintf("%.2f", v)
}

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer}
}

func (s *csvStreamer) writeRow(row []string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.pendingLines >= csvFlushEvery {
		return s.flush()
	}
	return nil
}

func (s *csvStreamer) flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// writeReportCSV renders the aging report as the export the collection
// staff print and carry.
func writeReportCSV(w io.Writer, report *Report) error {
	streamer := newCSVStreamer(w)
	header := []string{"customer_id", "name", "location", "balance", "age_days", "current", "31-60", "61-90", "over_90", "status"}
	if err := streamer.writeRow(header); err != nil {
		return err
	}
	for _, row := range report.Customers {
		record := []string{
			strconv.FormatInt(row.CustomerID, 10),
			row.Name,
			row.Location,
			formatAmount(row.Balance),
			strconv.Itoa(row.AgeDays),
			formatAmount(row.Buckets.Current),
			formatAmount(row.Buckets.Days31to60),
			formatAmount(row.Buckets.Days61to90),
			formatAmount(row.Buckets.Over90Days),
			string(row.Status),
		}
		if err := streamer.writeRow(record); err != nil {
			return err
		}
	}
	summary := []string{
		"", "TOTAL", "",
		formatAmount(report.Total),
		"",
		formatAmount(report.Summary.Current),
		formatAmount(report.Summary.Days31to60),
		formatAmount(report.Summary.Days61to90),
		formatAmount(report.Summary.Over90Days),
		"",
	}
	if err := streamer.writeRow(summary); err != nil {
		return err
	}
	if err := streamer.flush(); err != nil {
		return fmt.Errorf("aging: flush csv: %w", err)
	}
	return nil
}
