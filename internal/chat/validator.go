package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // max payload size
	MaxContentChars = 2000 // max character count
)

// ValidateContent checks a message body against content limits. A body that
// is blank after trimming is ErrEmptyContent; the other failures carry
// their limit.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if len(content) > MaxMessageBytes {
		return fmt.Errorf("chat: message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(content) > MaxContentChars {
		return fmt.Errorf("chat: message exceeds %d character limit", MaxContentChars)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("chat: message contains invalid UTF-8")
	}
	return nil
}
