package kaldi

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

func isKeyByte(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '.' || c == '-'
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrMalformedKey)
	}
	for i := 0; i < len(key); i++ {
		if !isKeyByte(key[i]) {
			return fmt.Errorf("%w: %q", ErrMalformedKey, key)
		}
	}
	return nil
}

// ReadKey reads the next archive key and the single separator byte after it,
// leaving r positioned at the start of the value record. ok is false, with a
// nil error, when no key remains.
func ReadKey(r io.Reader) (key string, ok bool, err error) {
	d := newDecoder(r)
	var sb strings.Builder
	for {
		c, err := d.readByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", false, err
		}
		if isSpace(c) {
			if sb.Len() == 0 {
				// Whitespace left over from the previous record.
				continue
			}
			break
		}
		sb.WriteByte(c)
	}
	if sb.Len() == 0 {
		return "", false, nil
	}
	key = sb.String()
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	return key, true, nil
}
