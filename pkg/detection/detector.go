package detection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/menta2k/waste-sorter/pkg/client"
	"github.com/menta2k/waste-sorter/pkg/types"
)

// DefaultThreshold is the minimum confidence for a detection to count.
const DefaultThreshold = 0.5

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks the model for the waste objects in an image.
const DefaultPrompt = `You are a waste sorting assistant. Identify the discarded objects in the image.

Return JSON only:
{
  "detections": [
    {"label": "string", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (≤ 20 words)",
  "tags": ["material1", "material2"]
}

HARD RULES
- label is a short common name for the object as someone would type it when asking how to dispose of it (e.g. "plastic bottle", "banana peel", "newspaper").
- Order detections from most to least prominent. At most 5 detections.
- All coordinates are normalized to [0,1] (NOT pixels).
- Tags name materials (plastic, glass, paper, metal, organic, fabric, electronic, ceramic). Lowercase, no duplicates.
- If nothing is visible, return {"detections": [], "description": "no object", "tags": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// PromptWithLabels extends DefaultPrompt with the vocabulary of known item names.
func PromptWithLabels(labels []string) string {
	if len(labels) == 0 {
		return DefaultPrompt
	}
	return DefaultPrompt + "\n- Prefer these labels when one fits: " + strings.Join(labels, ", ") + "."
}

// Detector handles waste object detection using vision models
type Detector struct {
	client client.VisionClient
	prompt string
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient) *Detector {
	return &Detector{client: client, prompt: DefaultPrompt}
}

// SetPrompt replaces the prompt used by Detect.
func (d *Detector) SetPrompt(prompt string) {
	if prompt != "" {
		d.prompt = prompt
	}
}

// Detect analyzes an image and returns normalized detections, most confident first.
func (d *Detector) Detect(ctx context.Context, model, imageB64 string) (*types.AnalysisResult, error) {
	if d.client == nil {
		return nil, fmt.Errorf("no vision client configured")
	}
	result, err := d.client.AnalyzeImage(ctx, model, d.prompt, imageB64)
	if err != nil {
		return nil, err
	}
	return Normalize(result), nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, model, imageB64 string) (string, error) {
	if d.client == nil {
		return "", fmt.Errorf("no vision client configured")
	}
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, imageB64)
}

// Normalize cleans labels, clamps boxes and confidences, drops unlabeled
// detections and sorts by descending confidence.
func Normalize(result *types.AnalysisResult) *types.AnalysisResult {
	if result == nil {
		return &types.AnalysisResult{Detections: []types.Detection{}}
	}
	out := make([]types.Detection, 0, len(result.Detections))
	for _, det := range result.Detections {
		det.Label = strings.ToLower(strings.TrimSpace(det.Label))
		if det.Label == "" || det.Label == "none" {
			continue
		}
		det.Confidence = clamp(det.Confidence, 0, 1)
		det.Box = normalizeBox(det.Box)
		out = append(out, det)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	result.Detections = out
	result.Tags = normalizeTags(result.Tags)
	return result
}

// Confident returns the detections whose confidence exceeds threshold.
func Confident(result *types.AnalysisResult, threshold float64) []types.Detection {
	if result == nil {
		return nil
	}
	var out []types.Detection
	for _, det := range result.Detections {
		if det.Confidence > threshold {
			out = append(out, det)
		}
	}
	return out
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox clamps the box into the unit square.
func normalizeBox(b types.Box) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}

// normalizeTags ensures tags are cleaned and limited to 5 entries
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}
