package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldSceneIndex is the standardized structured logging key for scene indices.
	FieldSceneIndex = "scene_index"
	// FieldRunID is the standardized structured logging key for pipeline run identifiers.
	FieldRunID = "run_id"
	// FieldFingerprint is the standardized structured logging key for stage fingerprints.
	FieldFingerprint = "fingerprint"
	// FieldEventType tags log records with a machine-readable event class.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step when surfacing a warning or error.
	FieldErrorHint = "error_hint"
	// FieldArtifact is the standardized structured logging key for artifact paths.
	FieldArtifact = "artifact"
)
