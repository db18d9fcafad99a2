package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minio/minio-go/v7"
)

// Category is the outcome of classifying an arbitrary error value.
type Category string

const (
	CategoryUnknown      Category = "unknown"
	CategoryUnique       Category = "unique"
	CategoryReferential  Category = "referential"
	CategoryRequired     Category = "required"
	CategoryNotFound     Category = "not_found"
	CategoryPermission   Category = "permission"
	CategoryConnectivity Category = "connectivity"
	CategoryTimeout      Category = "timeout"
	CategoryMalformed    Category = "malformed"
)

// BackendError is the error payload shape of a managed REST data backend.
type BackendError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

type Classification struct {
	Category Category
	// Text is the input with backend fragments stripped. It is only a candidate for
	// display when Category is unknown and Vendor is false.
	Text string
	// Vendor marks input that came from a driver error type; its text is never shown.
	Vendor bool
	// Technical is set when the raw input named infrastructure before it was stripped.
	Technical bool
}

// Classify inspects v once and reduces it to a category.
func Classify(v any) Classification {
	switch val := v.(type) {
	case nil:
		return Classification{Category: CategoryUnknown}
	case string:
		return classifyText(val)
	case BackendError:
		return classifyBackend(val)
	case *BackendError:
		if val == nil {
			return Classification{Category: CategoryUnknown}
		}
		return classifyBackend(*val)
	case map[string]any:
		return classifyBackend(backendFromMap(val))
	case error:
		return classifyError(val)
	case fmt.Stringer:
		return classifyText(val.String())
	default:
		return Classification{Category: CategoryUnknown}
	}
}

func classifyError(err error) Classification {
	if e, ok := As(err); ok {
		if e.Cause != nil {
			return classifyError(e.Cause)
		}
		return classifyText(e.Message)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Classification{Category: CategoryTimeout, Vendor: true}
	case errors.Is(err, pgx.ErrNoRows):
		return Classification{Category: CategoryNotFound, Vendor: true}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return Classification{Category: categoryForSQLState(pgErr.Code), Text: strip(pgErr.Message), Vendor: true}
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return Classification{Category: CategoryConnectivity, Vendor: true}
	}

	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		return Classification{Category: categoryForStorageCode(minioErr.Code), Text: strip(minioErr.Message), Vendor: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Classification{Category: CategoryTimeout, Vendor: true}
		}
		return Classification{Category: CategoryConnectivity, Vendor: true}
	}

	var backendErr BackendError
	if errors.As(err, &backendErr) {
		return classifyBackend(backendErr)
	}

	return classifyText(err.Error())
}

func classifyBackend(e BackendError) Classification {
	if strings.TrimSpace(e.Message) != "" {
		c := classifyText(e.Message)
		// A coded payload comes straight from the backend.
		c.Vendor = e.Code != ""
		if c.Category == CategoryUnknown && e.Details != "" {
			c.Category = classifyText(e.Details).Category
		}
		if c.Category == CategoryUnknown && e.Code != "" {
			if byCode := categoryForCode(e.Code); byCode != CategoryUnknown {
				c.Category = byCode
			}
		}
		return c
	}
	if e.Code != "" {
		return Classification{Category: categoryForCode(e.Code), Vendor: true}
	}
	return Classification{Category: CategoryUnknown}
}

func backendFromMap(m map[string]any) BackendError {
	str := func(key string) string {
		switch v := m[key].(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	}
	return BackendError{
		Message: str("message"),
		Code:    str("code"),
		Details: str("details"),
		Hint:    str("hint"),
	}
}

func categoryForCode(code string) Category {
	code = strings.TrimSpace(code)
	switch {
	case strings.HasPrefix(strings.ToUpper(code), "PGRST"):
		return categoryForRESTCode(strings.ToUpper(code))
	case len(code) == 5:
		return categoryForSQLState(code)
	default:
		return categoryForStorageCode(code)
	}
}

// categoryForRESTCode maps PostgREST codes: 1xx request, 2xx schema cache, 3xx JWT.
func categoryForRESTCode(code string) Category {
	// PGRST116: the request expected one row and got none.
	if code == "PGRST116" {
		return CategoryNotFound
	}
	rest := strings.TrimPrefix(code, "PGRST")
	if rest == "" {
		return CategoryUnknown
	}
	switch rest[0] {
	case '1':
		return CategoryMalformed
	case '2':
		return CategoryNotFound
	case '3':
		return CategoryPermission
	}
	return CategoryUnknown
}

func categoryForSQLState(code string) Category {
	switch code {
	case pgerrcode.UniqueViolation:
		return CategoryUnique
	case pgerrcode.ForeignKeyViolation, pgerrcode.RestrictViolation:
		return CategoryReferential
	case pgerrcode.NotNullViolation:
		return CategoryRequired
	case pgerrcode.UndefinedTable, pgerrcode.UndefinedColumn, pgerrcode.NoDataFound:
		return CategoryNotFound
	case pgerrcode.InsufficientPrivilege, pgerrcode.InvalidAuthorizationSpecification:
		return CategoryPermission
	case pgerrcode.QueryCanceled, pgerrcode.LockNotAvailable:
		return CategoryTimeout
	case pgerrcode.CheckViolation, pgerrcode.SyntaxError, pgerrcode.InvalidTextRepresentation:
		return CategoryMalformed
	}
	switch {
	case pgerrcode.IsConnectionException(code), pgerrcode.IsInsufficientResources(code):
		return CategoryConnectivity
	case pgerrcode.IsDataException(code):
		return CategoryMalformed
	}
	return CategoryUnknown
}

func categoryForStorageCode(code string) Category {
	switch code {
	case "NoSuchKey", "NoSuchBucket", "NoSuchUpload":
		return CategoryNotFound
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return CategoryPermission
	case "RequestTimeout", "SlowDown":
		return CategoryTimeout
	case "EntityTooLarge", "InvalidArgument", "InvalidBucketName", "KeyTooLongError":
		return CategoryMalformed
	case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
		return CategoryUnique
	}
	return CategoryUnknown
}

var textRules = []struct {
	category Category
	needles  []string
}{
	{CategoryUnique, []string{"duplicate", "unique", "already exists"}},
	{CategoryReferential, []string{"foreign key", "still referenced", "is not present in", "related data"}},
	{CategoryRequired, []string{"not-null", "not null", "null value", "required"}},
	{CategoryNotFound, []string{"does not exist", "not found", "no rows", "could not find", "schema cache"}},
	{CategoryPermission, []string{"permission", "unauthorized", "forbidden", "access denied", "row-level security", "security policy"}},
	{CategoryConnectivity, []string{"connect", "network", "refused", "unreachable"}},
	{CategoryTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{CategoryMalformed, []string{"invalid", "syntax", "malformed", "constraint"}},
}

func classifyText(text string) Classification {
	technical := containsTechnicalDetails(text)
	cleaned := strip(text)
	lower := strings.ToLower(cleaned)
	for _, rule := range textRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return Classification{Category: rule.category, Text: cleaned, Technical: technical}
			}
		}
	}
	return Classification{Category: CategoryUnknown, Text: cleaned, Technical: technical}
}

var stripRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\b(?:https?|postgres(?:ql)?|redis|s3)://\S+`), "[address]"},
	{regexp.MustCompile(`(?i)\b(?:ERROR|WARNING|FATAL):\s*`), ""},
	{regexp.MustCompile(`(?i)\(?\bSQLSTATE\s+\w+\)?`), ""},
	{regexp.MustCompile(`(?i)\(?\bPGRST\d+\)?`), ""},
	{regexp.MustCompile(`(?i)\bkey\s*\([^)]*\)=\([^)]*\)`), "value"},
	{regexp.MustCompile(`(?i)\b(?:table|relation)\s+['"]?[\w.]+['"]?\s+(does not exist|already exists)`), "resource $1"},
	{regexp.MustCompile(`(?i)\b(?:table|relation|schema|index)\s+['"]?[\w.]+['"]?`), "resource"},
	{regexp.MustCompile(`(?i)\bconstraint\s+['"]?[\w.]+['"]?`), "constraint"},
	{regexp.MustCompile(`(?i)\bcolumn\s+['"]?[\w.]+['"]?`), "field"},
	{regexp.MustCompile(`(?i)['"]?\b\w+['"]?\s+column\b`), "field"},
	{regexp.MustCompile(`(?i)\b(?:from|into|update)\s+['"]?[\w.]+['"]?`), ""},
}

var whitespace = regexp.MustCompile(`\s+`)

// strip removes table, column and constraint names, vendor codes and connection
// strings. Phrases that carry meaning are kept so classification still works.
func strip(text string) string {
	for _, rule := range stripRules {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}
