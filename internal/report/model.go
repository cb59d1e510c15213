package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"soulbench/internal/evaluation"
	"soulbench/internal/orchestrator"
)

// Chart geometry of the accuracy plot, in SVG user units.
const (
	chartWidth  = 640
	chartHeight = 240
	chartPad    = 32
)

// Field is one label/value pair of the run header.
type Field struct {
	Label string
	Value string
}

// Row is one document version in the accuracy table.
type Row struct {
	Version    string
	Train      string
	Test       string
	Gradable   string
	Ungradable string
	Selected   string
}

// Chart holds precomputed polyline points for the accuracy series.
type Chart struct {
	TrainPoints string
	TestPoints  string
	MaxVersion  string
}

// HasData reports whether any series has a point.
func (c Chart) HasData() bool {
	return c.TrainPoints != "" || c.TestPoints != ""
}

// Page is the view model of report.html.
type Page struct {
	Title    string
	Fields   []Field
	Rows     []Row
	Chart    Chart
	Document string
}

// Run is everything the report reads from a run directory.
type Run struct {
	Manifest orchestrator.Manifest
	Rounds   []evaluation.Summary
	Document string
}

// BuildPage turns run data into the view model.
func BuildPage(run Run) Page {
	m := run.Manifest
	page := Page{
		Title:    fmt.Sprintf("Revision run %s", m.RunID),
		Document: run.Document,
	}
	page.Fields = []Field{
		{Label: "Task", Value: m.Task},
		{Label: "Persona", Value: m.Persona},
		{Label: "Eval model", Value: m.EvalModel},
		{Label: "Revision model", Value: m.RevisionModel},
		{Label: "State", Value: string(m.State)},
		{Label: "Keep policy", Value: string(m.Keep)},
		{Label: "Target threshold", Value: formatPercent(&m.Threshold)},
	}
	if m.Selected != nil {
		page.Fields = append(page.Fields, Field{
			Label: "Selected version",
			Value: fmt.Sprintf("v%d (%s)", m.Selected.Version, formatPercent(m.Selected.Accuracy)),
		})
	}
	if m.AbortReason != "" {
		page.Fields = append(page.Fields, Field{Label: "Abort reason", Value: m.AbortReason})
		if m.LastGoodVersion != nil {
			page.Fields = append(page.Fields, Field{Label: "Last good version", Value: fmt.Sprintf("v%d", *m.LastGoodVersion)})
		}
	}

	byVersion := map[int]*Row{}
	var versions []int
	train := map[int]*float64{}
	test := map[int]*float64{}
	for _, round := range run.Rounds {
		row, ok := byVersion[round.Version]
		if !ok {
			row = &Row{Version: "v" + strconv.Itoa(round.Version), Train: "-", Test: "-"}
			if m.Selected != nil && m.Selected.Version == round.Version {
				row.Selected = "true"
			}
			byVersion[round.Version] = row
			versions = append(versions, round.Version)
		}
		switch round.Split {
		case "test":
			row.Test = formatPercent(round.Accuracy)
			test[round.Version] = round.Accuracy
		default:
			row.Train = formatPercent(round.Accuracy)
			row.Gradable = strconv.Itoa(round.GradableCount)
			row.Ungradable = strconv.Itoa(round.UngradableCount)
			train[round.Version] = round.Accuracy
		}
	}
	sort.Ints(versions)
	for _, version := range versions {
		page.Rows = append(page.Rows, *byVersion[version])
	}
	if len(versions) > 0 {
		last := versions[len(versions)-1]
		page.Chart = Chart{
			TrainPoints: polyline(versions, train, last),
			TestPoints:  polyline(versions, test, last),
			MaxVersion:  "v" + strconv.Itoa(last),
		}
	}
	return page
}

// polyline maps (version, accuracy) pairs into the chart box. Null
// accuracies are skipped.
func polyline(versions []int, series map[int]*float64, last int) string {
	span := float64(last)
	if span == 0 {
		span = 1
	}
	var points []string
	for _, version := range versions {
		accuracy := series[version]
		if accuracy == nil {
			continue
		}
		x := chartPad + float64(version)/span*(chartWidth-2*chartPad)
		y := chartHeight - chartPad - *accuracy*(chartHeight-2*chartPad)
		points = append(points, fmt.Sprintf("%.1f,%.1f", x, y))
	}
	return strings.Join(points, " ")
}

func formatPercent(value *float64) string {
	if value == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *value*100)
}
