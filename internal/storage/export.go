package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/restshape/internal/dynamo"
	"github.com/san-kum/restshape/internal/sim"
)

type ExportFrame struct {
	Time     float64                 `json:"time"`
	Forces   map[string][][6]float64 `json:"forces"`
	Diagonal []float64               `json:"diagonal"`
}

type ExportData struct {
	Scene   string             `json:"scene"`
	Dt      float64            `json:"dt"`
	KFactor float64            `json:"k_factor"`
	BFactor float64            `json:"b_factor"`
	Frames  []ExportFrame      `json:"frames"`
	Metrics map[string]float64 `json:"metrics"`
}

// NewExportData flattens a run result. Each force row is
// (fx, fy, fz, tx, ty, tz) for one DOF, in DOF order.
func NewExportData(scene string, cfg sim.Config, result *sim.Result) *ExportData {
	data := &ExportData{
		Scene:   scene,
		Dt:      cfg.Dt,
		KFactor: cfg.KFactor,
		BFactor: cfg.BFactor,
		Frames:  make([]ExportFrame, len(result.Frames)),
		Metrics: result.Metrics,
	}

	for i, fr := range result.Frames {
		ef := ExportFrame{
			Time:     fr.Time,
			Forces:   make(map[string][][6]float64, len(fr.Forces)),
			Diagonal: fr.Diagonal,
		}
		for name, f := range fr.Forces {
			ef.Forces[name] = flatten(f)
		}
		data.Frames[i] = ef
	}

	return data
}

func flatten(f dynamo.VecDeriv) [][6]float64 {
	rows := make([][6]float64, len(f))
	for i, d := range f {
		rows[i] = [6]float64{
			d.VCenter[0], d.VCenter[1], d.VCenter[2],
			d.VOrientation[0], d.VOrientation[1], d.VOrientation[2],
		}
	}
	return rows
}

func ExportJSON(path string, data *ExportData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteJSON(file, data)
}

func ExportJSONStdout(data *ExportData) error {
	return WriteJSON(os.Stdout, data)
}

func WriteJSON(w io.Writer, data *ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// ExportCSV copies a stored run's forces.csv to path.
func (s *Store) ExportCSV(runID, path string) error {
	src, err := os.Open(s.ForcesPath(runID))
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
