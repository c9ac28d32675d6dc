package logger

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldFile        = "file"
	FieldBank        = "bank"
	FieldAccount     = "account"
	FieldState       = "state"
	FieldPage        = "page"
	FieldRows        = "rows"
	FieldRef         = "ref"
	FieldFingerprint = "fingerprint"
	FieldRule        = "rule"
	FieldCategory    = "category"
	FieldSource      = "source"
	FieldConfidence  = "confidence"
	FieldImportID    = "import_id"
	FieldPath        = "path"
	FieldHash        = "hash"
	FieldDuration    = "duration_ms"
)

// Components defines standard component names
const (
	ComponentExtract    = "extract"
	ComponentOCR        = "ocr"
	ComponentIngest     = "ingest"
	ComponentCategorize = "categorize"
	ComponentRules      = "rules"
	ComponentReconcile  = "reconcile"
	ComponentExport     = "export"
	ComponentDatabase   = "database"
)
