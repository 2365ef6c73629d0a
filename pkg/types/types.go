package types

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Detection is a single object reported by the vision model
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// AnalysisResult contains the complete analysis result from the vision model
type AnalysisResult struct {
	Detections  []Detection `json:"detections"`
	Description string      `json:"description"`
	Tags        []string    `json:"tags"`
}

// Primary returns the first detection, if any.
func (r *AnalysisResult) Primary() (Detection, bool) {
	if r == nil || len(r.Detections) == 0 {
		return Detection{}, false
	}
	return r.Detections[0], true
}

// WasteItem is a catalog record describing how to dispose of one kind of item.
type WasteItem struct {
	ID                  string   `json:"id,omitempty"`
	Name                string   `json:"name"`
	Associates          []string `json:"associates"`
	Type                string   `json:"type"`
	ThreeRTip           string   `json:"three_r_tip"`
	Disposal            string   `json:"disposal"`
	Toxicity            string   `json:"toxicity"`
	Alternatives        []string `json:"alternatives"`
	HandlingPrecautions string   `json:"handling_precautions"`
}

// Material is an entry of the materials file used for free-text classification.
type Material struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	Type    string   `json:"type"`
	EcoTip  string   `json:"eco_tip"`
	Notes   string   `json:"notes"`
}

// Category groups keywords under a disposal stream such as "recyclable".
type Category struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Tips     string   `json:"tips"`
}

// MatchSource records which lookup stage produced a Guidance.
type MatchSource string

const (
	SourceExact     MatchSource = "exact"
	SourceSubstring MatchSource = "substring"
	SourceFuzzy     MatchSource = "fuzzy"
	SourceNone      MatchSource = "none"
)

// Guidance is the answer to a user query: either a matched item or a list of
// near matches.
type Guidance struct {
	Query   string      `json:"query"`
	Item    *WasteItem  `json:"item,omitempty"`
	Similar []WasteItem `json:"similar,omitempty"`
	Source  MatchSource `json:"source"`
}

// Found reports whether a single item was matched.
func (g Guidance) Found() bool {
	return g.Item != nil
}
