package bunch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var tsvHeader = []string{"#id", "x", "xp", "y", "yp", "ct", "dp"}

// WriteTSV writes one row per surviving particle.
func WriteTSV(w io.Writer, pop *Population) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(tsvHeader); err != nil {
		return err
	}
	var werr error
	pop.Each(func(p *Particle) {
		if werr != nil {
			return
		}
		rec := []string{strconv.Itoa(p.ID)}
		for _, v := range p.Coords() {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		werr = cw.Write(rec)
	})
	if werr != nil {
		return werr
	}
	cw.Flush()
	return cw.Error()
}

// ReadTSV reads particles written by WriteTSV. Rows with six columns are
// taken as bare coordinates and numbered in file order. Lines starting
// with '#' are ignored.
func ReadTSV(r io.Reader) ([]Particle, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []Particle
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading particles: %w", err)
		}
		p, err := parseRecord(rec, len(out))
		if err != nil {
			opsf("rejected particle row %d: %v", line, err)
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func parseRecord(rec []string, n int) (Particle, error) {
	var p Particle
	switch len(rec) {
	case 6:
		p.ID = n
	case 7:
		id, err := strconv.Atoi(rec[0])
		if err != nil {
			return p, fmt.Errorf("%w: id %q", ErrBadRecord, rec[0])
		}
		p.ID = id
		rec = rec[1:]
	default:
		return p, fmt.Errorf("%w: %d columns", ErrBadRecord, len(rec))
	}
	var c [6]float64
	for i, s := range rec {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return p, fmt.Errorf("%w: column %d: %v", ErrBadRecord, i, err)
		}
		c[i] = v
	}
	p.SetCoords(c)
	return p, nil
}
