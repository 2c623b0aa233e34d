package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"athensenergy/server/config"
	"athensenergy/server/internal/aggregate"
	"athensenergy/server/internal/models"
	"athensenergy/server/internal/pipeline"
)

// File names written by WriteFiles.
const (
	ResultFile     = "result.json"
	GroupsFile     = "groups.csv"
	RejectionsFile = "rejections.csv"
	BlocksFile     = "blocks.geojson"
)

// Document is the JSON form of one analysis run. Clean members are left out;
// they are available per group from the run store.
type Document struct {
	RunID            string                `json:"run_id"`
	StartedAt        time.Time             `json:"started_at"`
	DurationMs       int64                 `json:"duration_ms"`
	Strategy         string                `json:"strategy"`
	Settings         config.Pipeline       `json:"settings"`
	InputCount       int                   `json:"input_count"`
	CleanCount       int                   `json:"clean_count"`
	RejectedCount    int                   `json:"rejected_count"`
	WarnedCount      int                   `json:"warned_count"`
	RejectionsByFlag map[models.Flag]int   `json:"rejections_by_flag"`
	Groups           []models.GroupSummary `json:"groups"`
	Rejections       []models.Rejection    `json:"rejections"`
}

func NewDocument(result pipeline.Result) Document {
	doc := Document{
		RunID:            result.RunID,
		StartedAt:        result.StartedAt,
		DurationMs:       result.Duration.Milliseconds(),
		Strategy:         result.Strategy,
		Settings:         result.Settings,
		InputCount:       result.InputCount,
		CleanCount:       result.CleanCount,
		RejectedCount:    result.RejectedCount,
		WarnedCount:      result.WarnedCount,
		RejectionsByFlag: result.RejectionsByFlag(),
		Groups:           result.Summaries,
		Rejections:       result.Rejections,
	}
	if doc.Groups == nil {
		doc.Groups = []models.GroupSummary{}
	}
	if doc.Rejections == nil {
		doc.Rejections = []models.Rejection{}
	}
	return doc
}

// WriteJSON encodes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

var completenessFields = []string{
	aggregate.FieldPrice,
	aggregate.FieldArea,
	aggregate.FieldEnergyClass,
	aggregate.FieldCoordinates,
}

// GroupsHeader lists the columns of the groups export.
func GroupsHeader() []string {
	header := []string{
		"group_id", "base_key", "member_count", "status",
		"weighted_median_energy_class", "reason", "median_energy_class",
		"weighted_members", "total_sqm", "avg_price_per_sqm", "median_price_per_sqm",
		"price_min", "price_max", "area_min", "area_max",
	}
	for _, class := range models.AllEnergyClasses() {
		header = append(header, "count_"+class.String())
	}
	for _, field := range completenessFields {
		header = append(header, "completeness_"+field)
	}
	return header
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatClass(c *models.EnergyClass) string {
	if c == nil {
		return ""
	}
	return c.String()
}

func formatOptional(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

// WriteGroupsCSV writes one row per group summary.
func WriteGroupsCSV(w io.Writer, summaries []models.GroupSummary) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(GroupsHeader()); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, s := range summaries {
		row := []string{
			s.GroupID,
			s.BaseKey,
			strconv.Itoa(s.MemberCount),
			s.Status,
			formatClass(s.WeightedMedianEnergyClass),
			s.Reason,
			formatClass(s.MedianEnergyClass),
			strconv.Itoa(s.WeightedMembers),
			formatFloat(s.TotalSqm),
			formatFloat(s.AvgPricePerSqm),
			formatFloat(s.MedianPricePerSqm),
			formatFloat(s.PriceRange.Min),
			formatFloat(s.PriceRange.Max),
			formatFloat(s.AreaRange.Min),
			formatFloat(s.AreaRange.Max),
		}
		for _, class := range models.AllEnergyClasses() {
			row = append(row, strconv.Itoa(s.EnergyBreakdown[class.String()]))
		}
		for _, field := range completenessFields {
			row = append(row, formatFloat(s.Completeness[field]))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write group %s: %w", s.GroupID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteRejectionsCSV writes one row per rejected record. Flags are joined
// with ";".
func WriteRejectionsCSV(w io.Writer, rejections []models.Rejection) error {
	writer := csv.NewWriter(w)
	header := []string{
		"record_id", "neighborhood", "price", "area_sqm", "energy_class",
		"energy_class_confirmed", "flags", "source_url",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rej := range rejections {
		flags := make([]string, len(rej.Result.Flags))
		for i, f := range rej.Result.Flags {
			flags[i] = string(f)
		}
		r := rej.Record
		row := []string{
			r.ID,
			r.Neighborhood,
			formatOptional(r.Price),
			formatOptional(r.AreaSqm),
			r.EnergyClass.String(),
			strconv.FormatBool(r.EnergyClassConfirmed),
			strings.Join(flags, ";"),
			r.SourceURL,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write rejection %s: %w", r.ID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteFiles writes the result document, both CSV exports and, when blocks is
// not nil, the block map into dir. It returns the paths written.
func WriteFiles(dir string, result pipeline.Result, blocks *geojson.FeatureCollection) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	outputs := []struct {
		name  string
		write func(io.Writer) error
	}{
		{ResultFile, func(w io.Writer) error { return WriteJSON(w, NewDocument(result)) }},
		{GroupsFile, func(w io.Writer) error { return WriteGroupsCSV(w, result.Summaries) }},
		{RejectionsFile, func(w io.Writer) error { return WriteRejectionsCSV(w, result.Rejections) }},
	}
	if blocks != nil {
		outputs = append(outputs, struct {
			name  string
			write func(io.Writer) error
		}{BlocksFile, func(w io.Writer) error { return WriteJSON(w, blocks) }})
	}

	paths := make([]string, 0, len(outputs))
	for _, out := range outputs {
		path := filepath.Join(dir, out.name)
		if err := writeFile(path, out.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return file.Close()
}
