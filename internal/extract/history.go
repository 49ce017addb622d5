package extract

import (
	"slices"
	"sort"
	"time"

	"loginwatch/internal/model"
)

// Sample is the security object found in one capture, nil when none.
type Sample struct {
	CaptureID int64
	At        time.Time
	Object    *Object
}

// DayReport summarizes the security object across the captures of one UTC day.
type DayReport struct {
	Date    string
	Samples []Sample
	// Names are the distinct variable names seen, sorted.
	Names []string
	// Missing counts captures without an object.
	Missing int
	// Keys is the key set of the first object of the day.
	Keys       []string
	KeysStable bool
	// Churn compares the first and last object of the day.
	Churn Churn
}

// Consistent reports whether every capture of the day carried an object
// under one name with one key set.
func (d DayReport) Consistent() bool {
	return d.Missing == 0 && len(d.Names) == 1 && d.KeysStable
}

// AnalyzeHistory extracts the security object from every capture, oldest
// first, and groups the results by day.
func AnalyzeHistory(captures []model.Capture) []DayReport {
	var days []DayReport
	for _, c := range captures {
		date := c.CapturedAt.UTC().Format(time.DateOnly)
		if len(days) == 0 || days[len(days)-1].Date != date {
			days = append(days, DayReport{Date: date})
		}
		obj, _ := Extract(c.RawHTML)
		d := &days[len(days)-1]
		d.Samples = append(d.Samples, Sample{CaptureID: c.ID, At: c.CapturedAt, Object: obj})
	}
	for i := range days {
		summarize(&days[i])
	}
	return days
}

func summarize(d *DayReport) {
	var first, last *Object
	names := make(map[string]bool)
	d.KeysStable = true
	for _, s := range d.Samples {
		if s.Object == nil {
			d.Missing++
			continue
		}
		names[s.Object.Name] = true
		if first == nil {
			first = s.Object
			d.Keys = first.Keys
		} else if !slices.Equal(first.Keys, s.Object.Keys) {
			d.KeysStable = false
		}
		last = s.Object
	}
	for n := range names {
		d.Names = append(d.Names, n)
	}
	sort.Strings(d.Names)
	if first != nil && last != first {
		d.Churn = Compare(first, last)
	} else if first != nil {
		d.Churn = Churn{Stable: first.Keys}
	}
}
