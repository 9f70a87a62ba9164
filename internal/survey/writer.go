package survey

import (
	"encoding/csv"
	"io"
	"strconv"
)

var header = []string{"#name", "type", "s_end", "length", "ap_px", "ap_mx", "ap_py", "ap_my"}

// Writer streams survey samples as tab separated rows.
type Writer struct {
	w           *csv.Writer
	wroteHeader bool
}

// NewWriter returns a Writer that emits the header before the first row.
func NewWriter(w io.Writer) *Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return &Writer{w: cw}
}

// WriteHeader writes the column header if it has not been written yet.
func (w *Writer) WriteHeader() error {
	if w.wroteHeader {
		return nil
	}
	w.wroteHeader = true
	if err := w.w.Write(header); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

// WriteSample writes and flushes one row so that partial surveys are visible
// on disk up to the point of failure.
func (w *Writer) WriteSample(s Sample) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	row := []string{
		s.Element.Name,
		s.Element.Type,
		formatFloat(s.S),
		formatFloat(s.Element.Length),
		formatFloat(s.Limits[PlusX]),
		formatFloat(s.Limits[MinusX]),
		formatFloat(s.Limits[PlusY]),
		formatFloat(s.Limits[MinusY]),
	}
	if err := w.w.Write(row); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
