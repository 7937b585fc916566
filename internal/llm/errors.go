package llm

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// ErrFatalAPI marks provider errors that retrying the same provider will not fix
// (auth, billing). Rate limits and quotas are transient and never carry it.
var ErrFatalAPI = errors.New("fatal API error")

// statusCoder is implemented by the AWS SDK's smithy response errors.
type statusCoder interface {
	HTTPStatusCode() int
}

var fatalMarkers = []string{
	"credit balance",
	"billing",
	"invalid api key",
	"invalid x-api-key",
	"authentication",
	"unauthorized",
	"permission denied",
}

// reFatalStatus matches 401/403 only where a status code is reported, so digits in
// file names or ids don't count.
var reFatalStatus = regexp.MustCompile(`(?i)\b(?:http|status(?:\s*code)?|api returned|error)\s*:?\s*(?:401|403)\b`)

// IsFatalAPIError reports whether err is an auth or billing failure.
func IsFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFatalAPI) {
		return true
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatusCode()
		return code == http.StatusUnauthorized || code == http.StatusForbidden
	}
	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return reFatalStatus.MatchString(msg)
}

// WrapFatalError tags fatal errors with ErrFatalAPI and passes others through.
func WrapFatalError(err error) error {
	if err == nil || errors.Is(err, ErrFatalAPI) || !IsFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}
