package models

// Box is an axis-aligned bounding box in pixel coordinates, serialized as [x1, y1, x2, y2].
// (X1, Y1) is inclusive, (X2, Y2) is exclusive.
type Box [4]int

func (b Box) X1() int { return b[0] }
func (b Box) Y1() int { return b[1] }
func (b Box) X2() int { return b[2] }
func (b Box) Y2() int { return b[3] }

// Width returns the horizontal extent, zero for inverted boxes.
func (b Box) Width() int { return max(0, b[2]-b[0]) }

// Height returns the vertical extent, zero for inverted boxes.
func (b Box) Height() int { return max(0, b[3]-b[1]) }

// Area returns Width * Height.
func (b Box) Area() int { return b.Width() * b.Height() }

// Valid reports whether x1 < x2 and y1 < y2.
func (b Box) Valid() bool { return b[0] < b[2] && b[1] < b[3] }

// Clamp limits the box to [0,width] x [0,height].
func (b Box) Clamp(width, height int) Box {
	return Box{
		min(max(b[0], 0), width),
		min(max(b[1], 0), height),
		min(max(b[2], 0), width),
		min(max(b[3], 0), height),
	}
}

// Detection is one candidate item region found in a source image
type Detection struct {
	BBox        Box     `json:"bbox"`
	Label       string  `json:"label"`        // coarse label from the detector's table, shown to the user
	SearchLabel string  `json:"search_label"` // classifier label, used as the category filter
	Score       float64 `json:"score"`
	Source      string  `json:"source"`
}

// DetectResponse is returned by the detect endpoint
type DetectResponse struct {
	Detections  []Detection `json:"detections"`
	ImageWidth  int         `json:"image_width"`
	ImageHeight int         `json:"image_height"`

	// Degraded is set when a detector or the whole image fallback could not
	// run, so the result may be missing items and must not be cached.
	Degraded bool `json:"-"`
}

// VectorizeResponse is returned by the isolate+embed endpoint. All three fields are null on failure.
type VectorizeResponse struct {
	Vector         []float32 `json:"vector"`
	Category       *string   `json:"category"`
	ProcessedImage *string   `json:"processed_image"`
}

// ItemRecord is a catalogued item as stored in the vector index
type ItemRecord struct {
	ID          string    `json:"id"`
	Vector      []float32 `json:"-"`
	Name        string    `json:"name"`
	Store       string    `json:"store"`
	Level       string    `json:"level"`
	Mall        string    `json:"mall"`
	Filename    string    `json:"filename"`
	CategoryTag *string   `json:"category_tag"`
}

// Match is a ranked search result
type Match struct {
	Name          string  `json:"name"`
	Store         string  `json:"store"`
	Level         string  `json:"level"`
	Mall          string  `json:"mall"`
	Score         float64 `json:"score"`
	ImageFilename string  `json:"image_filename"`
}

// SearchResponse is returned by the search endpoint
type SearchResponse struct {
	Matches          []Match `json:"matches"`
	DebugImage       *string `json:"debug_image"`
	DetectedCategory *string `json:"detected_category"`
}

// AddResponse is returned by the ingestion endpoint
type AddResponse struct {
	ID          string  `json:"id"`
	Filename    string  `json:"filename"`
	CategoryTag *string `json:"category_tag"`
	Message     string  `json:"message"`
}
