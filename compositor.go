package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	canvasSize = 128

	labelPointSize = 16
	labelOffsetY   = 5

	barLeft   = 10
	barTop    = 100
	barRight  = 118
	barBottom = 110

	maxNameLength = 64
)

// ImageMagick color names; the native renderer uses the same RGB values.
const (
	canvasColor        = "white"
	barBackgroundColor = "red"
	barForegroundColor = "green"
)

var (
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrToolNotFound      = errors.New("image tool not found")
)

// CharacterSubmission is the form payload carried on the submit-form channel.
type CharacterSubmission struct {
	CharacterName   string `json:"characterName"`
	CharacterHealth string `json:"characterHealth"`
}

// UnmarshalJSON accepts characterHealth as either a string or a number.
func (s *CharacterSubmission) UnmarshalJSON(data []byte) error {
	var raw struct {
		CharacterName   string          `json:"characterName"`
		CharacterHealth json.RawMessage `json:"characterHealth"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.CharacterName = raw.CharacterName
	s.CharacterHealth = ""

	if len(raw.CharacterHealth) == 0 || string(raw.CharacterHealth) == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(raw.CharacterHealth, &str); err == nil {
		s.CharacterHealth = str
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(raw.CharacterHealth, &num); err != nil {
		return fmt.Errorf("characterHealth: %w", err)
	}
	s.CharacterHealth = num.String()
	return nil
}

// Compositor draws a character portrait into the PNG file at path.
type Compositor interface {
	Render(ctx context.Context, sub CharacterSubmission, path string) error
}

// StepError reports which draw step failed.
type StepError struct {
	Step   string
	Stderr string
	Err    error
}

func (e *StepError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("draw step %q: %v: %s", e.Step, e.Err, e.Stderr)
	}
	return fmt.Sprintf("draw step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func validateSubmission(sub CharacterSubmission) error {
	name := strings.TrimSpace(sub.CharacterName)
	if name == "" {
		return fmt.Errorf("%w: character name is required", ErrInvalidSubmission)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: character name is not valid UTF-8", ErrInvalidSubmission)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: character name longer than %d characters", ErrInvalidSubmission, maxNameLength)
	}
	if _, err := parseHealth(sub.CharacterHealth); err != nil {
		return err
	}
	return nil
}

// parseHealth reads a health percentage, clamped to [0, 100].
func parseHealth(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: character health is required", ErrInvalidSubmission)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: character health %q is not a number", ErrInvalidSubmission, s)
	}
	return int(math.Round(math.Max(0, math.Min(100, v)))), nil
}

// foregroundRight returns the inclusive right edge of the health fill.
// Callers skip the fill entirely at zero health.
func foregroundRight(health int) int {
	return barLeft + int(math.Round(float64(barRight-barLeft)*float64(health)/100))
}
