package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/restshape/internal/dynamo"
	"github.com/san-kum/restshape/internal/sim"
)

const (
	metadataFile = "metadata.json"
	forcesFile   = "forces.csv"
	diagonalFile = "diagonal.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type StateInfo struct {
	Name     string `json:"name"`
	Template string `json:"template"`
	Size     int    `json:"size"`
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Scene       string             `json:"scene"`
	Timestamp   time.Time          `json:"timestamp"`
	Dt          float64            `json:"dt"`
	KFactor     float64            `json:"k_factor"`
	BFactor     float64            `json:"b_factor"`
	Frames      int                `json:"frames"`
	States      []StateInfo        `json:"states"`
	ForceFields []string           `json:"forcefields"`
	Metrics     map[string]float64 `json:"metrics"`
	Errors      []string           `json:"errors,omitempty"`
}

// ForceRecord is one row of forces.csv.
type ForceRecord struct {
	Frame  int
	Time   float64
	State  string
	DOF    int
	Force  mgl64.Vec3
	Torque mgl64.Vec3
}

var forceHeader = []string{"frame", "time", "state", "dof", "fx", "fy", "fz", "tx", "ty", "tz"}

// Save writes meta and the per-frame results of a run under a new run
// directory. Only DOFs carrying a force are written to forces.csv.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", meta.Scene, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = now
	meta.Frames = result.FramesRun
	meta.Metrics = result.Metrics
	for _, err := range result.Errors {
		meta.Errors = append(meta.Errors, err.Error())
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeForces(filepath.Join(runDir, forcesFile), result); err != nil {
		return "", err
	}
	if err := writeDiagonals(filepath.Join(runDir, diagonalFile), result); err != nil {
		return "", err
	}

	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeForces(path string, result *sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteForcesCSV(f, result)
}

// WriteForcesCSV writes every non-zero force of result in forces.csv
// layout. States are written in name order.
func WriteForcesCSV(out io.Writer, result *sim.Result) error {
	w := csv.NewWriter(out)
	if err := w.Write(forceHeader); err != nil {
		return err
	}

	for i, fr := range result.Frames {
		names := make([]string, 0, len(fr.Forces))
		for name := range fr.Forces {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			for dof, d := range fr.Forces[name] {
				if d.IsZero() {
					continue
				}
				row := []string{strconv.Itoa(i), formatFloat(fr.Time), name, strconv.Itoa(dof)}
				for _, v := range append(d.VCenter[:], d.VOrientation[:]...) {
					row = append(row, formatFloat(v))
				}
				if err := w.Write(row); err != nil {
					return err
				}
			}
		}
	}

	w.Flush()
	return w.Error()
}

func writeDiagonals(path string, result *sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if len(result.Frames) == 0 {
		return nil
	}

	header := []string{"time"}
	for i := range result.Frames[0].Diagonal {
		header = append(header, fmt.Sprintf("k%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, fr := range result.Frames {
		row := []string{formatFloat(fr.Time)}
		for _, v := range fr.Diagonal {
			row = append(row, formatFloat(v))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}

		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// ForcesPath is the location of a run's forces.csv.
func (s *Store) ForcesPath(runID string) string {
	return filepath.Join(s.baseDir, runID, forcesFile)
}

func (s *Store) LoadForces(runID string) ([]ForceRecord, error) {
	file, err := os.Open(s.ForcesPath(runID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(forceHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	out := make([]ForceRecord, 0, len(records))
	for i := 1; i < len(records); i++ {
		rec, err := parseForceRecord(records[i])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", forcesFile, i+1, err)
		}
		out = append(out, rec)
	}

	return out, nil
}

func parseForceRecord(row []string) (ForceRecord, error) {
	var rec ForceRecord
	var err error

	if rec.Frame, err = strconv.Atoi(row[0]); err != nil {
		return rec, err
	}
	if rec.Time, err = strconv.ParseFloat(row[1], 64); err != nil {
		return rec, err
	}
	rec.State = row[2]
	if rec.DOF, err = strconv.Atoi(row[3]); err != nil {
		return rec, err
	}

	var vals [6]float64
	for j := range vals {
		if vals[j], err = strconv.ParseFloat(row[4+j], 64); err != nil {
			return rec, err
		}
	}
	rec.Force = mgl64.Vec3{vals[0], vals[1], vals[2]}
	rec.Torque = mgl64.Vec3{vals[3], vals[4], vals[5]}
	return rec, nil
}

// LoadDiagonals returns the stiffness diagonal of every frame and the frame
// times.
func (s *Store) LoadDiagonals(runID string) ([][]float64, []float64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, diagonalFile))
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}

	if len(records) < 2 {
		return [][]float64{}, []float64{}, nil
	}

	times := make([]float64, 0, len(records)-1)
	diags := make([][]float64, 0, len(records)-1)

	for i := 1; i < len(records); i++ {
		record := records[i]
		if len(record) == 0 {
			continue
		}

		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}
		times = append(times, t)

		diag := make([]float64, 0, len(record)-1)
		for j := 1; j < len(record); j++ {
			val, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				continue
			}
			diag = append(diag, val)
		}
		diags = append(diags, diag)
	}

	return diags, times, nil
}

// LoadResult rebuilds a run result from its stored files. Forces not written
// to forces.csv come back as zero.
func (s *Store) LoadResult(runID string) (*RunMetadata, *sim.Result, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	diags, times, err := s.LoadDiagonals(runID)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.LoadForces(runID)
	if err != nil {
		return nil, nil, err
	}

	result := &sim.Result{
		Frames:    make([]sim.FrameResult, len(times)),
		Metrics:   meta.Metrics,
		FramesRun: len(times),
	}
	for i := range result.Frames {
		fr := sim.FrameResult{
			Time:     times[i],
			Forces:   make(map[string]dynamo.VecDeriv, len(meta.States)),
			Diagonal: diags[i],
		}
		for _, st := range meta.States {
			fr.Forces[st.Name] = make(dynamo.VecDeriv, st.Size)
		}
		result.Frames[i] = fr
	}

	for _, rec := range records {
		if rec.Frame < 0 || rec.Frame >= len(result.Frames) {
			return nil, nil, fmt.Errorf("%s: frame %d out of range", forcesFile, rec.Frame)
		}
		f, ok := result.Frames[rec.Frame].Forces[rec.State]
		if !ok || rec.DOF < 0 || rec.DOF >= len(f) {
			return nil, nil, fmt.Errorf("%s: %s dof %d does not match metadata", forcesFile, rec.State, rec.DOF)
		}
		f[rec.DOF] = dynamo.Deriv{VCenter: rec.Force, VOrientation: rec.Torque}
	}

	return meta, result, nil
}

// NewRunMetadata describes scene and the driver settings of a run.
func NewRunMetadata(scene *sim.Scene, cfg sim.Config) RunMetadata {
	meta := RunMetadata{
		Scene:   scene.Name,
		Dt:      cfg.Dt,
		KFactor: cfg.KFactor,
		BFactor: cfg.BFactor,
	}
	for _, ms := range scene.States {
		meta.States = append(meta.States, StateInfo{Name: ms.Name(), Template: ms.Template().String(), Size: ms.Size()})
	}
	for _, ff := range scene.ForceFields {
		meta.ForceFields = append(meta.ForceFields, ff.Name())
	}
	return meta
}
