package relax

import (
	"os"
	"path/filepath"

	"github.com/Open-Catalyst-Project/cgcnn"
	"github.com/google/uuid"
)

// TrajectoryWriter appends structure snapshots to a file. Frames are written
// to a uniquely named temp file and renamed to <name>.traj only on Close, so
// a crashed or cancelled run never leaves a half-written final trajectory and
// concurrent runs can share a directory.
type TrajectoryWriter struct {
	f          *os.File
	tmp, final string
}

func NewTrajectoryWriter(dir, name string) (*TrajectoryWriter, error) {
	final := filepath.Join(dir, name+".traj")
	tmp := final + "." + uuid.NewString() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	return &TrajectoryWriter{f: f, tmp: tmp, final: final}, nil
}

func (w *TrajectoryWriter) Write(sys *cgcnn.AtomicSystem) error {
	rec, err := cgcnn.EncodeSystem(sys)
	if err != nil {
		return err
	}
	_, err = w.f.Write(rec)
	return err
}

func (w *TrajectoryWriter) Close() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	return os.Rename(w.tmp, w.final)
}

// Abort discards the temp file without promoting it to the final name.
func (w *TrajectoryWriter) Abort() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	return os.Remove(w.tmp)
}

// ReadTrajectory loads every frame of a finished trajectory file.
func ReadTrajectory(path string) ([]*cgcnn.AtomicSystem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return cgcnn.DecodeStream(data)
}

func (l *LBFGS) openTrajectories() error {
	if l.opts.TrajDir == "" {
		return nil
	}
	if err := os.MkdirAll(l.opts.TrajDir, 0o755); err != nil {
		return err
	}
	l.trajs = make([]*TrajectoryWriter, 0, len(l.opts.TrajNames))
	for _, name := range l.opts.TrajNames {
		w, err := NewTrajectoryWriter(l.opts.TrajDir, name)
		if err != nil {
			l.abortTrajectories()
			return err
		}
		l.trajs = append(l.trajs, w)
	}
	return nil
}

// writeFrames snapshots the batch, one frame per system still of interest:
// in save-full mode only systems that have not converged yet, otherwise every
// system (the caller already limited writes to first/last/converged frames).
func (l *LBFGS) writeFrames(energy, forces []float64, convergedMask []bool) {
	b := l.optimizable.Batch()
	b.Energy = energy
	b.Forces = forces
	for i, sys := range b.Systems() {
		if !convergedMask[i] || !l.opts.SaveFullTraj {
			if err := l.trajs[i].Write(sys); err != nil {
				l.opts.Logger.Error("trajectory write failed", "name", l.opts.TrajNames[i], "error", err)
			}
		}
	}
}

// closeTrajectories runs on every exit path; only closed trajectories get
// their final name.
func (l *LBFGS) closeTrajectories() {
	for _, w := range l.trajs {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			l.opts.Logger.Error("trajectory close failed", "error", err)
		}
	}
	l.trajs = nil
}

// abortTrajectories drops writers opened by a run that never started; no
// empty <name>.traj must appear where the run produced nothing.
func (l *LBFGS) abortTrajectories() {
	for _, w := range l.trajs {
		if w == nil {
			continue
		}
		if err := w.Abort(); err != nil {
			l.opts.Logger.Error("trajectory abort failed", "error", err)
		}
	}
	l.trajs = nil
}
