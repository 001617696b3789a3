package iface

import (
	"encoding/json"
	"fmt"
	"time"
)

// SelectedFile is one image the user picked, kept in memory until it is
// removed or the selection is reset.
type SelectedFile struct {
	Name      string
	Size      int64
	MIME      string
	Content   []byte
	Thumb     []byte // nil when the image could not be decoded
	ThumbMIME string
}

// Candidate is an upload that has not been validated yet.
type Candidate struct {
	Name         string
	Size         int64
	DeclaredType string
	Content      []byte
}

type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// UnmarshalJSON accepts both {"x1":..,"y1":..,"x2":..,"y2":..} and the
// [x1, y1, x2, y2] list the detection API emits.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var list []float64
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) != 4 {
			return fmt.Errorf("bbox: expected 4 coordinates, got %d", len(list))
		}
		b.X1, b.Y1, b.X2, b.Y2 = list[0], list[1], list[2], list[3]
		return nil
	}
	type plain BBox
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("bbox: %w", err)
	}
	*b = BBox(p)
	return nil
}

type Detection struct {
	Confidence float64 `json:"confidence"`
	BBox       *BBox   `json:"bbox,omitempty"`
	Label      string  `json:"label,omitempty"`
}

type ImageInfo struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format,omitempty"`
	Channels int    `json:"channels,omitempty"`
}

// DetectionResult is the per-image payload returned by the detection API.
type DetectionResult struct {
	Success          bool        `json:"success"`
	Filename         string      `json:"filename"`
	ProcessingTime   *float64    `json:"processing_time,omitempty"`
	Detections       []Detection `json:"detections,omitempty"`
	NumDetections    *int        `json:"num_detections,omitempty"`
	VisualizationURL string      `json:"visualization_url,omitempty"`
	ImageInfo        *ImageInfo  `json:"image_info,omitempty"`
	Error            string      `json:"error,omitempty"`
}

type BatchResponse struct {
	Results              []DetectionResult `json:"results"`
	TotalImages          *int              `json:"total_images,omitempty"`
	SuccessfulDetections *int              `json:"successful_detections,omitempty"`
	FailedDetections     *int              `json:"failed_detections,omitempty"`
	TotalProcessingTime  *float64          `json:"total_processing_time,omitempty"`
}

const (
	NoticeError   = "error"
	NoticeSuccess = "success"
	NoticeWarning = "warning"
)

// Notice is a transient banner shown to one session.
type Notice struct {
	ID      string        `json:"id"`
	Kind    string        `json:"kind"`
	Message string        `json:"message"`
	Created time.Time     `json:"created"`
	TTL     time.Duration `json:"ttl"`
}

func (n Notice) Expired(now time.Time) bool {
	return now.Sub(n.Created) >= n.TTL
}
