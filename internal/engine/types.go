// Package engine provides an HTTP client for the face model server that runs
// detection, swapping, enhancement and NSFW classification.
package engine

// Model names reported by the engine's model status endpoint.
const (
	ModelSwapper    = "inswapper"
	ModelEnhancer   = "gfpgan"
	ModelClassifier = "open_nsfw"
)

// noFaceError is the error code the engine reports when an image has no face to work on.
const noFaceError = "no_face"

// Face is a detected face in an image.
type Face struct {
	// Box is the bounding box as [x1, y1, x2, y2].
	Box [4]int `json:"box"`
	// Embedding identifies the face; faces are compared by embedding distance.
	Embedding []float64 `json:"embedding"`
	// Score is the detector confidence.
	Score float64 `json:"score"`
}

// SwapOptions controls a single swap call.
type SwapOptions struct {
	ManyFaces   bool      // Swap every detected face instead of those matching Reference
	Reference   []float64 // Embedding of the face to replace, ignored when ManyFaces is set
	Distance    float64   // Max embedding distance for a face to match Reference
	Threads     int       // Execution threads forwarded to the model runtime
	MaxMemoryGB int       // Memory ceiling forwarded to the model runtime
}

// modelResponse represents the response from GET /models/{name}.
type modelResponse struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// imageRequest is the body of endpoints that take a single image.
type imageRequest struct {
	Image   string `json:"image"`
	Threads int    `json:"threads,omitempty"`
}

// detectResponse represents the response from POST /detect.
type detectResponse struct {
	Faces []Face `json:"faces"`
}

// referenceRequest represents the body of POST /reference.
type referenceRequest struct {
	Image    string `json:"image"`
	Position int    `json:"position"`
}

// referenceResponse represents the response from POST /reference.
type referenceResponse struct {
	Face  *Face  `json:"face"`
	Error string `json:"error,omitempty"`
}

// swapRequest represents the body of POST /swap.
type swapRequest struct {
	Source      string    `json:"source"`
	Target      string    `json:"target"`
	ManyFaces   bool      `json:"many_faces"`
	Reference   []float64 `json:"reference,omitempty"`
	Distance    float64   `json:"distance"`
	Threads     int       `json:"threads"`
	MaxMemoryGB int       `json:"max_memory_gb"`
}

// imageResponse is returned by endpoints that produce an image.
type imageResponse struct {
	Image string `json:"image"`
	Error string `json:"error,omitempty"`
}

// classifyResponse represents the response from POST /classify.
type classifyResponse struct {
	NSFW float64 `json:"nsfw"`
}
