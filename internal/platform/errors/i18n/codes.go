package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeInvalidFormat      = "INVALID_FORMAT"
	CodeUnsupportedVersion = "UNSUPPORTED_VERSION"
	CodeTruncatedFile      = "TRUNCATED_FILE"
	CodeMalformedManifest  = "MALFORMED_MANIFEST"
	CodeAssetIntegrity     = "ASSET_INTEGRITY"
	CodeAuthentication     = "AUTHENTICATION"
	CodeGameFolderNotFound = "GAME_FOLDER_NOT_FOUND"
	CodeIngestFailed       = "INGEST_FAILED"
	CodeScript             = "SCRIPT_ERROR"
	CodeAPICall            = "API_CALL_ERROR"
	CodeInvalidState       = "INVALID_STATE"
	CodeSaveCorrupted      = "SAVE_CORRUPTED"
)
