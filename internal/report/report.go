// Package report aggregates per-scene quality results into the run summary:
// frame-weighted statistics, a score histogram, and rendered tables for the
// console and the report artifact.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SceneRow is one scene's contribution to the report.
type SceneRow struct {
	Index      int
	StartFrame int64
	EndFrame   int64

	// Score is the scene's reported score (the configured percentile of
	// the per-frame distribution); MeanScore is the per-frame mean.
	Score     float64
	MeanScore float64

	ExtractCached bool
	EncodeCached  bool
	MeasureCached bool

	EncodedBytes int64

	Failed bool
	Reason string
}

// Frames returns the scene length in frames.
func (r SceneRow) Frames() int64 {
	return r.EndFrame - r.StartFrame
}

// Summary holds the aggregate statistics over all successful scenes.
type Summary struct {
	Metric     string
	Percentile float64

	SceneCount   int
	FailedScenes int
	TotalFrames  int64
	ScoredFrames int64

	// WeightedMean weights each scene's score by its frame count, so short
	// scenes cannot mask a drop in a long one.
	WeightedMean float64
	Min          float64
	Max          float64
	Median       float64
	P05          float64
	P95          float64

	EncodedBytes int64
	OutputPath   string
	Elapsed      time.Duration
}

// Summarize reduces scene rows to aggregate statistics. Failed scenes are
// excluded from the score statistics but counted.
func Summarize(metric string, percentile float64, rows []SceneRow) Summary {
	summary := Summary{
		Metric:     metric,
		Percentile: percentile,
		SceneCount: len(rows),
		Min:        math.Inf(1),
		Max:        math.Inf(-1),
	}

	scored := make([]SceneRow, 0, len(rows))
	for _, row := range rows {
		summary.TotalFrames += row.Frames()
		if row.Failed {
			summary.FailedScenes++
			continue
		}
		scored = append(scored, row)
		summary.ScoredFrames += row.Frames()
		summary.EncodedBytes += row.EncodedBytes
		if row.Score < summary.Min {
			summary.Min = row.Score
		}
		if row.Score > summary.Max {
			summary.Max = row.Score
		}
	}
	if len(scored) == 0 {
		summary.Min, summary.Max = 0, 0
		return summary
	}

	var weightedSum float64
	for _, row := range scored {
		weightedSum += row.Score * float64(row.Frames())
	}
	summary.WeightedMean = weightedSum / float64(summary.ScoredFrames)

	summary.Median = weightedQuantile(scored, summary.ScoredFrames, 0.5)
	summary.P05 = weightedQuantile(scored, summary.ScoredFrames, 0.05)
	summary.P95 = weightedQuantile(scored, summary.ScoredFrames, 0.95)
	return summary
}

// weightedQuantile treats each scene's score as covering its frame count and
// returns the score at the q-quantile frame.
func weightedQuantile(rows []SceneRow, totalFrames int64, q float64) float64 {
	sorted := append([]SceneRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })

	target := int64(math.Ceil(q * float64(totalFrames)))
	if target < 1 {
		target = 1
	}
	var cumulative int64
	for _, row := range sorted {
		cumulative += row.Frames()
		if cumulative >= target {
			return row.Score
		}
	}
	return sorted[len(sorted)-1].Score
}

// Histogram renders a frame-weighted text histogram of scene scores.
func Histogram(rows []SceneRow, buckets int) string {
	if buckets < 1 {
		buckets = 10
	}
	scored := make([]SceneRow, 0, len(rows))
	min, max := math.Inf(1), math.Inf(-1)
	var totalFrames int64
	for _, row := range rows {
		if row.Failed {
			continue
		}
		scored = append(scored, row)
		totalFrames += row.Frames()
		if row.Score < min {
			min = row.Score
		}
		if row.Score > max {
			max = row.Score
		}
	}
	if len(scored) == 0 || totalFrames == 0 {
		return ""
	}
	if min == max {
		max = min + 1
	}

	counts := make([]int64, buckets)
	width := (max - min) / float64(buckets)
	for _, row := range scored {
		bucket := int((row.Score - min) / width)
		if bucket >= buckets {
			bucket = buckets - 1
		}
		counts[bucket] += row.Frames()
	}

	var peak int64
	for _, count := range counts {
		if count > peak {
			peak = count
		}
	}

	const barWidth = 40
	var b strings.Builder
	for i, count := range counts {
		low := min + float64(i)*width
		high := low + width
		bar := 0
		if peak > 0 {
			bar = int(math.Round(float64(count) / float64(peak) * barWidth))
		}
		if count > 0 && bar == 0 {
			bar = 1
		}
		fmt.Fprintf(&b, "%8.2f - %8.2f  %-*s %d\n", low, high, barWidth, strings.Repeat("#", bar), count)
	}
	return strings.TrimRight(b.String(), "\n")
}

var printer = message.NewPrinter(language.English)

// Render writes the scene table, histogram, and summary table to w.
func Render(w io.Writer, summary Summary, rows []SceneRow) {
	fmt.Fprintln(w, renderSceneTable(rows))
	if histogram := Histogram(rows, 10); histogram != "" {
		fmt.Fprintf(w, "\n%s score distribution (frames per bucket):\n%s\n", summary.Metric, histogram)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderSummaryTable(summary))
}

func renderSceneTable(rows []SceneRow) string {
	headers := []string{"Scene", "Frames", "Range", "Extract", "Encode", "Measure", "Score", "Size"}
	aligns := []Alignment{AlignRight, AlignRight, AlignLeft, AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignRight}

	tableRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		score := "-"
		size := "-"
		if !row.Failed {
			score = fmt.Sprintf("%.2f", row.Score)
			size = printer.Sprintf("%d", row.EncodedBytes)
		}
		tableRows = append(tableRows, []string{
			fmt.Sprintf("%d", row.Index),
			printer.Sprintf("%d", row.Frames()),
			fmt.Sprintf("[%d, %d)", row.StartFrame, row.EndFrame),
			cacheMark(row.ExtractCached, row.Failed),
			cacheMark(row.EncodeCached, row.Failed),
			cacheMark(row.MeasureCached, row.Failed),
			score,
			size,
		})
	}
	return RenderTable(headers, tableRows, aligns)
}

func renderSummaryTable(summary Summary) string {
	headers := []string{"Statistic", "Value"}
	aligns := []Alignment{AlignLeft, AlignRight}

	rows := [][]string{
		{"Metric", fmt.Sprintf("%s (p%.0f per scene)", summary.Metric, summary.Percentile*100)},
		{"Scenes", printer.Sprintf("%d", summary.SceneCount)},
		{"Failed scenes", printer.Sprintf("%d", summary.FailedScenes)},
		{"Total frames", printer.Sprintf("%d", summary.TotalFrames)},
		{"Weighted mean", fmt.Sprintf("%.3f", summary.WeightedMean)},
		{"Median", fmt.Sprintf("%.3f", summary.Median)},
		{"Min", fmt.Sprintf("%.3f", summary.Min)},
		{"Max", fmt.Sprintf("%.3f", summary.Max)},
		{"P05", fmt.Sprintf("%.3f", summary.P05)},
		{"P95", fmt.Sprintf("%.3f", summary.P95)},
		{"Encoded bytes", printer.Sprintf("%d", summary.EncodedBytes)},
	}
	if summary.OutputPath != "" {
		rows = append(rows, []string{"Output", summary.OutputPath})
	}
	if summary.Elapsed > 0 {
		rows = append(rows, []string{"Elapsed", summary.Elapsed.Round(time.Second).String()})
	}
	return RenderTable(headers, rows, aligns)
}

func cacheMark(cached, failed bool) string {
	if failed {
		return "failed"
	}
	if cached {
		return "cached"
	}
	return "computed"
}

// WriteArtifact renders the report into a text file next to the merged
// output so the run's quality summary survives the terminal session.
func WriteArtifact(path string, summary Summary, rows []SceneRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report: create directory: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "cleave report %s\n\n", time.Now().UTC().Format(time.RFC3339))
	Render(&b, summary, rows)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("report: write artifact: %w", err)
	}
	return nil
}
