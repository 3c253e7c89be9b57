package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCompletionUnavailable indicates the completion service could not
	// produce an answer (transport failure, empty choice list).
	ErrCompletionUnavailable = errors.New("completion unavailable")

	// ErrFatalAPI indicates an API error that will not go away on retry
	// (billing, quota, authentication).
	ErrFatalAPI = errors.New("fatal API error")
)

// fatalPatterns are lowercase substrings of provider errors that mean every
// further call will fail the same way.
var fatalPatterns = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// wrapFatalError marks fatal provider errors with ErrFatalAPI and returns
// other errors unchanged.
func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}
