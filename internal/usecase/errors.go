package usecase

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStore         = errors.New("store error")
	ErrExtractor     = errors.New("extractor error")
	ErrInvalidSource = errors.New("invalid source")
)

func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStore, err)
}

func wrapExtractor(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrExtractor, err)
}

// failureMessage trims an error to its first line so task views stay
// compact.
func failureMessage(err error) string {
	msg := strings.TrimSpace(err.Error())
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = strings.TrimSpace(msg[:i])
	}
	if msg == "" {
		return "unknown error"
	}
	return msg
}
