// Package input reads bulk set lines for the log command, from stdin (-)
// or a file (@path).
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// SetLine is one parsed line of a bulk log source.
type SetLine struct {
	Exercise string
	Reps     int
	Weight   float64
}

// IsBulkSource reports whether arg names a bulk input: "-" for stdin or
// "@path" for a file.
func IsBulkSource(arg string) bool {
	return arg == "-" || strings.HasPrefix(arg, "@")
}

// Lines reads the set lines of a bulk source argument.
func Lines(arg string) ([]string, error) {
	if arg == "-" {
		return ReadLinesFromReader(os.Stdin), nil
	}
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		defer f.Close()
		return ReadLinesFromReader(f), nil
	}
	return nil, fmt.Errorf("not a bulk source: %q", arg)
}

// ReadLinesFromReader reads non-empty lines from a reader, skipping
// #-comment lines so workout template files can annotate themselves.
func ReadLinesFromReader(r io.Reader) []string {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// ParseSetLine parses "exercise reps weight". The exercise name may span
// several words; the last two fields are the numbers.
func ParseSetLine(line string) (SetLine, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return SetLine{}, fmt.Errorf(`want "exercise reps weight", got %q`, line)
	}

	reps, err := strconv.Atoi(fields[len(fields)-2])
	if err != nil {
		return SetLine{}, fmt.Errorf("reps must be a whole number, got %q", fields[len(fields)-2])
	}
	weight, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return SetLine{}, fmt.Errorf("weight must be a number, got %q", fields[len(fields)-1])
	}

	return SetLine{
		Exercise: strings.Join(fields[:len(fields)-2], " "),
		Reps:     reps,
		Weight:   weight,
	}, nil
}
