package tracking

import (
	"io"

	"github.com/banshee-data/lossmap/internal/bunch"
	"github.com/banshee-data/lossmap/internal/fsutil"
)

// SnapshotObserver writes the population to a file each time it is
// notified. In append mode the first snapshot truncates the file and later
// ones are added to its end; otherwise the file holds the latest snapshot
// only.
type SnapshotObserver struct {
	Outputs fsutil.Outputs
	Name    string
	Append  bool

	writes int
}

// Observe writes the current population.
func (s *SnapshotObserver) Observe(turn int, _ *Segment, pop *bunch.Population) error {
	write := func(w io.Writer) error { return bunch.WriteTSV(w, pop) }
	var err error
	if s.Append && s.writes > 0 {
		err = s.Outputs.Append(s.Name, write)
	} else {
		err = s.Outputs.Write(s.Name, write)
	}
	if err != nil {
		return err
	}
	s.writes++
	tracef("snapshot %s turn %d: %d particles", s.Name, turn, pop.Len())
	return nil
}

// Writes returns how many snapshots have been written.
func (s *SnapshotObserver) Writes() int { return s.writes }
