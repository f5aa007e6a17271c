package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/SundayYogurt/clearance_service/internal/domain"
)

// ExportProfile renders a profile as "key: value" lines in field order.
// Nested values are flattened: olevel_sitting_1.subjects[0].grade: A1
func ExportProfile(p domain.StudentProfile) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var lines []string
	if err := flatten(dec, "", &lines); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func flatten(dec *json.Decoder, prefix string, lines *[]string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return err
				}
				key := fmt.Sprint(keyTok)
				if prefix != "" {
					key = prefix + "." + key
				}
				if err := flatten(dec, key, lines); err != nil {
					return err
				}
			}
		case '[':
			for i := 0; dec.More(); i++ {
				if err := flatten(dec, fmt.Sprintf("%s[%d]", prefix, i), lines); err != nil {
					return err
				}
			}
		}
		// closing delimiter
		if _, err := dec.Token(); err != nil && err != io.EOF {
			return err
		}
	case nil:
		*lines = append(*lines, prefix+": ")
	default:
		*lines = append(*lines, fmt.Sprintf("%s: %v", prefix, t))
	}
	return nil
}
