package training

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/airquality.report/internal/monitoring"
)

// Feature columns of a training row.
const (
	FeatureLat = iota
	FeatureLng
	FeatureTime
	NumFeatures
)

// TrainingSet is the estimator input: X[k] = [lat, lng, relTime] and Y[k] the
// calibrated concentration measured there.
type TrainingSet struct {
	X [][NumFeatures]float64
	Y []float64
	// Reference is the instant that maps to relative time 0.
	Reference time.Time
}

// Len is the number of training rows.
func (ts *TrainingSet) Len() int { return len(ts.Y) }

// SensorGap records a sensor excluded from the batch.
type SensorGap struct {
	Index    int
	SensorID string
	Model    string
	Reason   error
}

// Report summarises what cleaning did to one batch.
type Report struct {
	Sensors         int
	Steps           int
	Observations    int // Sensors * Steps
	MissingReadings int // entries missing or non-finite in the raw matrix
	ExcludedSensors []SensorGap
	Kept            int
	Dropped         int
	Reference       time.Time
	MeanY           float64
	StdY            float64
}

// Assembler builds training sets. The zero value has an empty calibration
// table, so every sensor would be excluded; use NewAssembler.
type Assembler struct {
	Calibration CalibrationTable
}

// NewAssembler returns an Assembler using table for calibration.
func NewAssembler(table CalibrationTable) *Assembler {
	return &Assembler{Calibration: table}
}

// Assemble cleans raw into a training set.
//
// Missing entries are detected first and never enter calibration arithmetic.
// Sensors whose model has no calibration are excluded and reported. The
// time x sensor matrix is then flattened row by row, with each sensor's
// position tiled across time steps and each step's relative time repeated
// across sensors, and every row whose concentration is missing is dropped.
func (a *Assembler) Assemble(raw *RawObservationSet) (*TrainingSet, *Report, error) {
	if err := raw.Validate(); err != nil {
		return nil, nil, err
	}
	nSensors, nSteps := raw.Sensors(), raw.Steps()
	report := &Report{Sensors: nSensors, Steps: nSteps, Observations: nSensors * nSteps}
	if nSensors == 0 || nSteps == 0 {
		return nil, report, fmt.Errorf("%w: %d sensors over %d time steps", ErrEmptyTrainingSet, nSensors, nSteps)
	}

	conc, missing := FindMissing(raw.Concentration)
	report.MissingReadings = missing

	conc, gaps := Calibrate(conc, raw.SensorModels, a.Calibration)
	for i := range gaps {
		gaps[i].SensorID = raw.sensorID(gaps[i].Index)
		monitoring.Logf("training: excluding sensor %s (model %q): %v", gaps[i].SensorID, gaps[i].Model, gaps[i].Reason)
	}
	report.ExcludedSensors = gaps

	ref := MinTimestamp(raw.Timestamps)
	report.Reference = ref
	relTimes := RelativeTimes(raw.Timestamps, ref)

	x, y := Flatten(conc, raw.Latitudes, raw.Longitudes, relTimes)
	x, values := RemoveMissing(x, y)
	report.Kept = len(values)
	report.Dropped = len(y) - len(values)

	if len(values) == 0 {
		return nil, report, fmt.Errorf("%w: all %d observations missing or excluded", ErrEmptyTrainingSet, report.Observations)
	}
	report.MeanY, report.StdY = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		report.StdY = 0
	}

	return &TrainingSet{X: x, Y: values, Reference: ref}, report, nil
}

// FindMissing returns a copy of conc in which every non-finite value is
// marked missing, along with the number of missing entries.
func FindMissing(conc [][]Reading) ([][]Reading, int) {
	out := make([][]Reading, len(conc))
	missing := 0
	for t, row := range conc {
		out[t] = make([]Reading, len(row))
		for s, r := range row {
			if r.usable() {
				out[t][s] = r
				continue
			}
			out[t][s] = Missing()
			missing++
		}
	}
	return out, missing
}

// Calibrate applies the per-model correction to every valid reading. Missing
// readings pass through untouched. A sensor whose model is not in table has
// its whole column marked missing and is returned as a gap.
func Calibrate(conc [][]Reading, models []string, table CalibrationTable) ([][]Reading, []SensorGap) {
	coeffs := make([]Calibration, len(models))
	known := make([]bool, len(models))
	var gaps []SensorGap
	for s, m := range models {
		coeffs[s], known[s] = table.Lookup(m)
		if !known[s] {
			gaps = append(gaps, SensorGap{
				Index:  s,
				Model:  m,
				Reason: fmt.Errorf("%w %q", ErrCalibrationGap, m),
			})
		}
	}

	out := make([][]Reading, len(conc))
	for t, row := range conc {
		out[t] = make([]Reading, len(row))
		for s, r := range row {
			switch {
			case !known[s]:
				out[t][s] = Missing()
			case r.Valid:
				out[t][s] = Value(coeffs[s].Apply(r.Value))
			default:
				out[t][s] = r
			}
		}
	}
	return out, gaps
}

// MinTimestamp returns the earliest instant in ts, or the zero time for an
// empty slice.
func MinTimestamp(ts []time.Time) time.Time {
	if len(ts) == 0 {
		return time.Time{}
	}
	earliest := ts[0]
	for _, t := range ts[1:] {
		if t.Before(earliest) {
			earliest = t
		}
	}
	return earliest
}

// RelativeTimes converts ts to hours elapsed since ref.
func RelativeTimes(ts []time.Time, ref time.Time) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = t.Sub(ref).Hours()
	}
	return out
}

// Flatten lays the time x sensor matrix out as one row per entry in
// row-major order: row k = t*len(lats) + s. Positions are tiled across time
// and relative times repeated across sensors so every row stays aligned.
func Flatten(conc [][]Reading, lats, lngs, relTimes []float64) ([][NumFeatures]float64, []Reading) {
	n := len(lats)
	x := make([][NumFeatures]float64, 0, len(conc)*n)
	y := make([]Reading, 0, len(conc)*n)
	for t, row := range conc {
		for s, r := range row {
			x = append(x, [NumFeatures]float64{lats[s], lngs[s], relTimes[t]})
			y = append(y, r)
		}
	}
	return x, y
}

// RemoveMissing drops every row whose reading is missing from both x and y.
func RemoveMissing(x [][NumFeatures]float64, y []Reading) ([][NumFeatures]float64, []float64) {
	keptX := make([][NumFeatures]float64, 0, len(x))
	keptY := make([]float64, 0, len(y))
	for k, r := range y {
		if !r.usable() {
			continue
		}
		keptX = append(keptX, x[k])
		keptY = append(keptY, r.Value)
	}
	return keptX, keptY
}

// Assemble is a convenience wrapper around Assembler.Assemble with the
// default calibration table.
func Assemble(raw *RawObservationSet) (*TrainingSet, *Report, error) {
	return NewAssembler(DefaultCalibrationTable()).Assemble(raw)
}
