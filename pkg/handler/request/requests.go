package request

// Body of POST /api/v1/loads.
type LoadRequest struct {
	Kind     string `json:"kind"`     // "experiment" or "analysis"
	Manifest string `json:"manifest"` // local path or s3:// URL of the manifest
}
