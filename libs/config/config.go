package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func String(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func RequiredString(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func Port(key, fallback string) (string, error) {
	v := String(key, fallback)
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}

func Int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func Duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// UTCOffset parses a fixed offset of the form "+02:00" or "-05:30" into a
// time.Location. Appointment date/time fields carry no zone of their own, so
// every component that resolves them must share one configured offset.
func UTCOffset(key, fallback string) (*time.Location, error) {
	v := String(key, fallback)
	loc, err := parseOffset(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be a UTC offset like +02:00 (got %q)", key, v)
	}
	return loc, nil
}

func parseOffset(v string) (*time.Location, error) {
	if len(v) != 6 || (v[0] != '+' && v[0] != '-') || v[3] != ':' {
		return nil, fmt.Errorf("malformed offset %q", v)
	}
	hours, err := strconv.Atoi(v[1:3])
	if err != nil || hours < 0 || hours > 14 {
		return nil, fmt.Errorf("malformed offset %q", v)
	}
	mins, err := strconv.Atoi(v[4:6])
	if err != nil || mins < 0 || mins > 59 {
		return nil, fmt.Errorf("malformed offset %q", v)
	}
	secs := hours*3600 + mins*60
	if v[0] == '-' {
		secs = -secs
	}
	return time.FixedZone("UTC"+v, secs), nil
}
