package callcontrol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used for numbers written without a country code.
const DefaultRegion = "BG"

// NormalizeNumber parses raw in the context of region and returns it in E.164.
func NormalizeNumber(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("callcontrol: phone number is empty")
	}
	if region == "" {
		region = DefaultRegion
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("callcontrol: parse %q: %w", raw, err)
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", fmt.Errorf("callcontrol: %q is not a dialable number", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
