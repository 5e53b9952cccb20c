package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docbench/docbench/internal/stepplan"
)

// parseSizeBytes parses a size literal with a B/KB/MB suffix.
func parseSizeBytes(s string) (int, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	mult := 1
	switch {
	case strings.HasSuffix(upper, "KB"):
		mult = 1024
		s = s[:len(s)-2]
	case strings.HasSuffix(upper, "MB"):
		mult = 1024 * 1024
		s = s[:len(s)-2]
	case strings.HasSuffix(upper, "B"):
		s = s[:len(s)-1]
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("cmd: unparseable size %q: %w", s, err)
	}
	return v * mult, nil
}

// parseDurationUnit parses a duration literal with an ms/s/m suffix.
func parseDurationUnit(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(s, "ms"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "ms"), 64)
		if err != nil {
			return 0, fmt.Errorf("cmd: unparseable duration %q: %w", s, err)
		}
		return time.Duration(v * float64(time.Millisecond)), nil
	case strings.HasSuffix(s, "s"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
		if err != nil {
			return 0, fmt.Errorf("cmd: unparseable duration %q: %w", s, err)
		}
		return time.Duration(v * float64(time.Second)), nil
	case strings.HasSuffix(s, "m"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "m"), 64)
		if err != nil {
			return 0, fmt.Errorf("cmd: unparseable duration %q: %w", s, err)
		}
		return time.Duration(v * float64(time.Minute)), nil
	default:
		return 0, fmt.Errorf("cmd: duration %q missing ms/s/m suffix", s)
	}
}

// parsePercent parses a percentage literal, accepting a trailing '%' and
// returning a [0,1] fraction.
func parsePercent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("cmd: unparseable percent %q: %w", s, err)
	}
	return v / 100, nil
}

// parseRampPlan parses "start..endxfactor", e.g. "1..512x1.5".
func parseRampPlan(s string) (stepplan.Plan, error) {
	dotdot := strings.Index(s, "..")
	if dotdot < 0 {
		return stepplan.Plan{}, fmt.Errorf("cmd: ramp plan %q missing \"..\"", s)
	}
	xIdx := strings.LastIndex(s, "x")
	if xIdx < 0 || xIdx < dotdot {
		return stepplan.Plan{}, fmt.Errorf("cmd: ramp plan %q missing \"x<factor>\"", s)
	}
	startStr := s[:dotdot]
	endStr := s[dotdot+2 : xIdx]
	factorStr := s[xIdx+1:]

	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return stepplan.Plan{}, fmt.Errorf("cmd: ramp plan start %q: %w", startStr, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		return stepplan.Plan{}, fmt.Errorf("cmd: ramp plan end %q: %w", endStr, err)
	}
	factor, err := strconv.ParseFloat(strings.TrimSpace(factorStr), 64)
	if err != nil {
		return stepplan.Plan{}, fmt.Errorf("cmd: ramp plan factor %q: %w", factorStr, err)
	}
	return stepplan.Plan{Start: start, End: end, Factor: factor}, nil
}

// parseKneeRule parses "dthr=<p>,dp95=<p>" into fractional thresholds.
func parseKneeRule(s string) (dThr, dP95 float64, err error) {
	parts := strings.Split(s, ",")
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return 0, 0, fmt.Errorf("cmd: unparseable knee-rule term %q", part)
		}
		raw := strings.TrimSpace(kv[1])
		var v float64
		if strings.HasSuffix(raw, "%") {
			pv, perr := parsePercent(raw)
			if perr != nil {
				return 0, 0, perr
			}
			v = pv
		} else {
			fv, ferr := strconv.ParseFloat(raw, 64)
			if ferr != nil {
				return 0, 0, fmt.Errorf("cmd: unparseable knee-rule value %q: %w", raw, ferr)
			}
			v = fv
		}
		switch strings.TrimSpace(kv[0]) {
		case "dthr":
			dThr = v
		case "dp95":
			dP95 = v
		default:
			return 0, 0, fmt.Errorf("cmd: unknown knee-rule term %q", kv[0])
		}
	}
	return dThr, dP95, nil
}
