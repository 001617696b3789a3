// Package render turns detection API results into display cards and owns
// the HTML templates of the page.
package render

import (
	"fmt"
	"math"

	iface "TableDetFront/interface"
)

const (
	NotAvailable   = "N/A"
	GenericFailure = "Analysis failed"
)

type DetectionRow struct {
	Index      int
	Confidence string
	Position   string
	Label      string
}

type Card struct {
	Title            string
	Success          bool
	Error            string
	ThumbURL         string
	VisualizationURL string
	ProcessingTime   string
	DetectionCount   int
	ImageSize        string
	Detections       []DetectionRow
	NoDetections     bool
}

// Summary is the batch-level line shown above the cards.
type Summary struct {
	Images    int
	Succeeded int
	Failed    int
	TotalTime string
	HasTotals bool
}

// Links resolves the image URLs a card points at. Either func may be nil.
type Links struct {
	Thumb         func(f *iface.SelectedFile) string
	Visualization func(path string) string
}

// BuildCard renders one result. file is the selected file with the same
// name, or nil.
func BuildCard(res iface.DetectionResult, file *iface.SelectedFile, links Links) Card {
	card := Card{Title: res.Filename, Success: res.Success}
	if !res.Success {
		card.Error = res.Error
		if card.Error == "" {
			card.Error = GenericFailure
		}
		return card
	}

	if file != nil && links.Thumb != nil {
		card.ThumbURL = links.Thumb(file)
	}
	if res.VisualizationURL != "" && links.Visualization != nil {
		card.VisualizationURL = links.Visualization(res.VisualizationURL)
	}
	card.ProcessingTime = FormatSeconds(res.ProcessingTime)
	if res.ImageInfo != nil && res.ImageInfo.Width > 0 {
		card.ImageSize = fmt.Sprintf("%d×%d", res.ImageInfo.Width, res.ImageInfo.Height)
	}

	card.DetectionCount = len(res.Detections)
	if card.DetectionCount == 0 && res.NumDetections != nil {
		card.DetectionCount = *res.NumDetections
	}
	card.NoDetections = card.DetectionCount == 0
	card.Detections = make([]DetectionRow, 0, len(res.Detections))
	for i, d := range res.Detections {
		card.Detections = append(card.Detections, DetectionRow{
			Index:      i + 1,
			Confidence: FormatConfidence(d.Confidence),
			Position:   FormatBBox(d.BBox),
			Label:      d.Label,
		})
	}
	return card
}

func BuildSummary(batch *iface.BatchResponse) Summary {
	if batch == nil {
		return Summary{}
	}
	s := Summary{Images: len(batch.Results)}
	for _, r := range batch.Results {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	if batch.TotalImages != nil {
		s.Images = *batch.TotalImages
		s.HasTotals = true
	}
	if batch.SuccessfulDetections != nil {
		s.Succeeded = *batch.SuccessfulDetections
		s.HasTotals = true
	}
	if batch.FailedDetections != nil {
		s.Failed = *batch.FailedDetections
		s.HasTotals = true
	}
	if batch.TotalProcessingTime != nil {
		s.TotalTime = FormatSeconds(batch.TotalProcessingTime)
		s.HasTotals = true
	}
	return s
}

func FormatSeconds(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%.2fs", *v)
}

func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.1f%%", c*100)
}

func FormatBBox(b *iface.BBox) string {
	if b == nil {
		return NotAvailable
	}
	return fmt.Sprintf("(%d, %d) - (%d, %d)", round(b.X1), round(b.Y1), round(b.X2), round(b.Y2))
}

func round(v float64) int {
	return int(math.Round(v))
}
