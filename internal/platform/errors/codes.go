// Package errors provides structured, coded errors for the package loader and
// script host. User-facing renderings live in the i18n subpackage.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Container decode errors
	CodeInvalidFormat      Code = "INVALID_FORMAT"
	CodeUnsupportedVersion Code = "UNSUPPORTED_VERSION"
	CodeTruncatedFile      Code = "TRUNCATED_FILE"
	CodeMalformedManifest  Code = "MALFORMED_MANIFEST"

	// Integrity errors
	CodeAssetIntegrity Code = "ASSET_INTEGRITY"
	CodeAuthentication Code = "AUTHENTICATION"

	// Resolution and ingestion errors
	CodeGameFolderNotFound Code = "GAME_FOLDER_NOT_FOUND"
	CodeIngestFailed       Code = "INGEST_FAILED"

	// Script host errors
	CodeScript       Code = "SCRIPT_ERROR"
	CodeAPICall      Code = "API_CALL_ERROR"
	CodeInvalidState Code = "INVALID_STATE"

	// Save errors
	CodeSaveCorrupted Code = "SAVE_CORRUPTED"
)

// Category names the error family a code belongs to.
type Category string

const (
	CategoryDecode             Category = "DecodeError"
	CategoryAssetIntegrity     Category = "AssetIntegrityError"
	CategoryAuthentication     Category = "AuthenticationError"
	CategoryGameFolderNotFound Category = "GameFolderNotFound"
	CategoryIngest             Category = "IngestError"
	CategoryScript             Category = "ScriptError"
	CategoryAPICall            Category = "ApiCallError"
	CategorySave               Category = "SaveError"
	CategoryInternal           Category = "InternalError"
)

// Category maps a code to its error family.
func (c Code) Category() Category {
	switch c {
	case CodeInvalidFormat,
		CodeUnsupportedVersion,
		CodeTruncatedFile,
		CodeMalformedManifest:
		return CategoryDecode

	case CodeAssetIntegrity:
		return CategoryAssetIntegrity

	case CodeAuthentication:
		return CategoryAuthentication

	case CodeGameFolderNotFound:
		return CategoryGameFolderNotFound

	case CodeIngestFailed:
		return CategoryIngest

	// Lifecycle misuse is reported alongside script failures.
	case CodeScript, CodeInvalidState:
		return CategoryScript

	case CodeAPICall:
		return CategoryAPICall

	case CodeSaveCorrupted:
		return CategorySave

	default:
		return CategoryInternal
	}
}
