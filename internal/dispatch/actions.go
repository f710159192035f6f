package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lesny8/supla-cloud/internal/schedule"
)

// ValidateActionParams checks action+params against the subject's declared
// capability set and returns the normalized parameter map. It is called once
// when the schedule is saved and again on edit; dispatch trusts the result.
func ValidateActionParams(subject schedule.Subject, action schedule.Action, params map[string]string) (map[string]string, error) {
	if !schedule.Supports(subject, action) {
		return nil, fmt.Errorf("%w: subject does not support %q", schedule.ErrInvalidActionParams, action)
	}

	switch action {
	case schedule.ActionRevealPartially:
		pct, err := intParam(params, "percentage", 0, 100, -1)
		if err != nil {
			return nil, err
		}
		if pct < 0 {
			return nil, fmt.Errorf("%w: percentage is required", schedule.ErrInvalidActionParams)
		}
		return map[string]string{"percentage": strconv.Itoa(pct)}, nil

	case schedule.ActionSetRGBW:
		color, err := colorParam(params, "color")
		if err != nil {
			return nil, err
		}
		colorBrightness, err := intParam(params, "color_brightness", 0, 100, 100)
		if err != nil {
			return nil, err
		}
		brightness, err := intParam(params, "brightness", 0, 100, 100)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"color":            strconv.Itoa(color),
			"color_brightness": strconv.Itoa(colorBrightness),
			"brightness":       strconv.Itoa(brightness),
		}, nil

	default:
		// Parameterless actions reject stray payloads so typos surface at
		// save time.
		if len(params) > 0 {
			return nil, fmt.Errorf("%w: action %q takes no parameters", schedule.ErrInvalidActionParams, action)
		}
		return map[string]string{}, nil
	}
}

func intParam(params map[string]string, key string, min, max, def int) (int, error) {
	raw, ok := params[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", schedule.ErrInvalidActionParams, key)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%w: %s out of range [%d,%d]", schedule.ErrInvalidActionParams, key, min, max)
	}
	return v, nil
}

func colorParam(params map[string]string, key string) (int, error) {
	raw := strings.TrimSpace(params[key])
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", schedule.ErrInvalidActionParams, key)
	}
	base := 10
	if strings.HasPrefix(strings.ToLower(raw), "0x") {
		raw = raw[2:]
		base = 16
	}
	v, err := strconv.ParseInt(raw, base, 64)
	if err != nil || v < 0 || v > 0xFFFFFF {
		return 0, fmt.Errorf("%w: %s must be a 24-bit color", schedule.ErrInvalidActionParams, key)
	}
	return int(v), nil
}
