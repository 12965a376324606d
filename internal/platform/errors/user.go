package errors

import "github.com/louisbranch/gaem/internal/platform/errors/i18n"

// UserMessage renders err for display in the given locale. Domain errors use
// their code template; anything else renders as a generic failure.
func UserMessage(err error, locale string) string {
	if err == nil {
		return ""
	}
	domainErr, ok := As(err)
	if !ok {
		return "An unexpected error occurred."
	}
	return i18n.GetCatalog(locale).Format(string(domainErr.Code), domainErr.Metadata)
}
