package apperr

import (
	"regexp"
)

const (
	MessageUnique       = "This information already exists. Please use a different value."
	MessageReferential  = "This operation cannot be completed due to related data. Please check your input."
	MessageRequired     = "Please fill in all required fields."
	MessageNotFound     = "The requested information could not be found."
	MessagePermission   = "You do not have permission to perform this action."
	MessageConnectivity = "Unable to connect to the server. Please check your internet connection and try again."
	MessageTimeout      = "The request took too long. Please try again."
	MessageMalformed    = "The information provided is invalid. Please check your input and try again."
	MessageGeneric      = "An error occurred while processing your request. Please try again later."
	MessageUnexpected   = "An unexpected error occurred. Please try again later."
)

// minDisplayLen is the shortest cleaned text returned verbatim.
const minDisplayLen = 10

var categoryMessages = map[Category]string{
	CategoryUnique:       MessageUnique,
	CategoryReferential:  MessageReferential,
	CategoryRequired:     MessageRequired,
	CategoryNotFound:     MessageNotFound,
	CategoryPermission:   MessagePermission,
	CategoryConnectivity: MessageConnectivity,
	CategoryTimeout:      MessageTimeout,
	CategoryMalformed:    MessageMalformed,
}

var technicalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:supabase|postgres|postgresql|pgx|pgconn|minio|redis|sql|database|db)\b`),
	regexp.MustCompile(`(?i)\b(?:table|column|relation|schema|constraint|index)\b`),
	regexp.MustCompile(`(?i)\b(?:select|insert|update|delete|from|where|join)\b`),
	regexp.MustCompile(`(?i)\b(?:sqlstate|pgrst)`),
	regexp.MustCompile(`\b(?:\d{2}[0-9A-Z]{3}|[0-9A-Z]{2}\d{3})\b`),
	regexp.MustCompile(`(?i)\b[a-z_]+\.(?:id|created_at|updated_at)\b`),
	regexp.MustCompile(`\b[a-z0-9]+_[a-z0-9_]+\b`),
	regexp.MustCompile(`\[address\]`),
	// quoted identifiers
	regexp.MustCompile(`'[^'\s]+'|"[^"\s]+"`),
}

// Sanitize turns any error value into a message that is safe to return to a client.
func Sanitize(v any) string {
	if err, ok := v.(error); ok {
		if e, ok := As(err); ok && e.Kind != KindBackend && e.Message != "" {
			return e.Message
		}
	}

	c := Classify(v)
	if msg, ok := categoryMessages[c.Category]; ok {
		return msg
	}
	if c.Vendor || c.Technical || containsTechnicalDetails(c.Text) {
		return MessageGeneric
	}
	if len(c.Text) < minDisplayLen {
		return MessageUnexpected
	}
	return c.Text
}

func containsTechnicalDetails(text string) bool {
	for _, re := range technicalPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
