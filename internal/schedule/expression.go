// Package schedule triggers workflow executions from a cron expression.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Expression is a parsed schedule expression
type Expression struct {
	// Source is the expression as configured
	Source string
	// Spec is the equivalent five field cron spec or @every descriptor
	Spec     string
	schedule cron.Schedule
}

// Next returns the first activation after from
func (e Expression) Next(from time.Time) time.Time {
	return e.schedule.Next(from)
}

// ParseExpression accepts "cron(min hour dom month dow year)", the same six
// fields without the wrapper, or "rate(n unit)". The year field must be "*"
// and numeric days of week count from 1 (Sunday).
func ParseExpression(expr string) (Expression, error) {
	src := strings.TrimSpace(expr)

	var spec string
	var err error
	switch {
	case strings.HasPrefix(src, "rate(") && strings.HasSuffix(src, ")"):
		spec, err = rateSpec(src[len("rate(") : len(src)-1])
	case strings.HasPrefix(src, "cron(") && strings.HasSuffix(src, ")"):
		spec, err = cronSpec(src[len("cron(") : len(src)-1])
	default:
		spec, err = cronSpec(src)
	}
	if err != nil {
		return Expression{}, fmt.Errorf("invalid schedule expression %q: %w", expr, err)
	}

	schedule, err := parser.Parse(spec)
	if err != nil {
		return Expression{}, fmt.Errorf("invalid schedule expression %q: %w", expr, err)
	}

	return Expression{Source: src, Spec: spec, schedule: schedule}, nil
}

func cronSpec(body string) (string, error) {
	fields := strings.Fields(body)
	if len(fields) != 6 {
		return "", fmt.Errorf("expected 6 fields, got %d", len(fields))
	}
	if fields[5] != "*" {
		return "", fmt.Errorf("year field %q is not supported", fields[5])
	}
	if fields[2] != "?" && fields[4] != "?" {
		return "", fmt.Errorf("one of day-of-month and day-of-week must be ?")
	}

	dow, err := dayOfWeek(fields[4])
	if err != nil {
		return "", err
	}

	return strings.Join([]string{fields[0], fields[1], fields[2], fields[3], dow}, " "), nil
}

// dayOfWeek shifts numeric days from 1-7 to 0-6
func dayOfWeek(field string) (string, error) {
	if field == "?" || field == "*" {
		return field, nil
	}

	parts := strings.Split(field, ",")
	for i, part := range parts {
		base, step, hasStep := strings.Cut(part, "/")
		bounds := strings.Split(base, "-")
		for j, b := range bounds {
			if b == "*" {
				continue
			}
			n, err := strconv.Atoi(b)
			if err != nil {
				// named days
				continue
			}
			if n < 1 || n > 7 {
				return "", fmt.Errorf("day of week %d out of range 1-7", n)
			}
			bounds[j] = strconv.Itoa(n - 1)
		}
		parts[i] = strings.Join(bounds, "-")
		if hasStep {
			parts[i] += "/" + step
		}
	}
	return strings.Join(parts, ","), nil
}

func rateSpec(body string) (string, error) {
	fields := strings.Fields(body)
	if len(fields) != 2 {
		return "", fmt.Errorf("expected value and unit")
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 {
		return "", fmt.Errorf("rate value must be a positive integer")
	}

	unit := strings.TrimSuffix(fields[1], "s")
	if (n == 1) != (unit == fields[1]) {
		return "", fmt.Errorf("unit %q does not agree with value %d", fields[1], n)
	}

	var d time.Duration
	switch unit {
	case "minute":
		d = time.Duration(n) * time.Minute
	case "hour":
		d = time.Duration(n) * time.Hour
	case "day":
		d = time.Duration(n) * 24 * time.Hour
	default:
		return "", fmt.Errorf("unsupported rate unit %q", fields[1])
	}

	return "@every " + d.String(), nil
}
