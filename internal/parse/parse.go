package parse

import (
	"fmt"
	"strconv"
	"strings"

	"mangasync/internal/domain"
)

type Range struct {
	Start float64
	End   float64
}

func (r Range) Contains(f float64) bool {
	return f >= r.Start && f <= r.End
}

// Selection is a parsed chapter selection such as "1,2.5,4-7".
type Selection struct {
	Labels []string
	Ranges []Range
}

func (s Selection) IsEmpty() bool {
	return len(s.Labels) == 0 && len(s.Ranges) == 0
}

// Matches reports whether the chapter label is selected. Ranges only match numeric labels.
func (s Selection) Matches(label string) bool {
	for _, l := range s.Labels {
		if l == label {
			return true
		}
		// "01" and "1" name the same chapter
		a, okA := domain.ParseLabel(l)
		b, okB := domain.ParseLabel(label)
		if okA && okB && a == b {
			return true
		}
	}

	f, ok := domain.ParseLabel(label)
	if !ok {
		return false
	}
	for _, r := range s.Ranges {
		if r.Contains(f) {
			return true
		}
	}
	return false
}

// ChapterSelection parses the user input for ranges and parts
func ChapterSelection(input string) (Selection, error) {
	var sel Selection

	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			r, err := ChapterRange(part)
			if err != nil {
				return Selection{}, err
			}
			sel.Ranges = append(sel.Ranges, r)
			continue
		}

		sel.Labels = append(sel.Labels, part)
	}

	return sel, nil
}

// ChapterRange parses "start-end" into an inclusive range.
func ChapterRange(input string) (Range, error) {
	rangeParts := strings.Split(input, "-")
	if len(rangeParts) != 2 {
		return Range{}, fmt.Errorf("invalid range format: %s", input)
	}

	start, end, err := getRange(rangeParts)
	if err != nil {
		return Range{}, err
	}

	return Range{Start: start, End: end}, nil
}

// getRange parses the user input for chapter ranges
func getRange(rangeParts []string) (float64, float64, error) {
	start, err := strconv.ParseFloat(strings.TrimSpace(rangeParts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start of range: %s", rangeParts[0])
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(rangeParts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end of range: %s", rangeParts[1])
	}

	if start > end {
		return 0, 0, fmt.Errorf("start of range should not be greater than end: %s-%s", rangeParts[0], rangeParts[1])
	}

	return start, end, nil
}

// List splits a comma separated flag value.
func List(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
