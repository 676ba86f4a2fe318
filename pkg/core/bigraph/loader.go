package bigraph

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile reads a ratings file with one triple per line:
//
//	movie<sep>user<sep>rating
//
// where <sep> is "::" (MovieLens .dat style), a comma, or whitespace.
// Movie and user are zero-based indices; graph dimensions are inferred from
// the largest index seen. Lines starting with '#' and blank lines are
// skipped.
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bigraph: open ratings file: %w", err)
	}
	defer f.Close()

	type triple struct{ movie, user, rating uint32 }
	var triples []triple
	var maxMovie, maxUser uint32
	seen := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := splitRatingLine(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("bigraph: line %d: want 3 fields, got %d", lineNo, len(fields))
		}

		movie, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bigraph: line %d: bad movie id %q: %w", lineNo, fields[0], err)
		}
		user, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bigraph: line %d: bad user id %q: %w", lineNo, fields[1], err)
		}
		rating, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bigraph: line %d: bad rating %q: %w", lineNo, fields[2], err)
		}

		triples = append(triples, triple{uint32(movie), uint32(user), uint32(rating)})
		if uint32(movie) > maxMovie || !seen {
			maxMovie = uint32(movie)
		}
		if uint32(user) > maxUser || !seen {
			maxUser = uint32(user)
		}
		seen = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("bigraph: read ratings file: %w", err)
	}
	if !seen {
		return nil, fmt.Errorf("bigraph: %s contains no ratings", path)
	}

	b := NewBuilder(int(maxMovie)+1, int(maxUser)+1)
	for _, t := range triples {
		if err := b.Add(t.movie, t.user, t.rating); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

func splitRatingLine(line string) []string {
	if strings.Contains(line, "::") {
		return strings.Split(line, "::")
	}
	if strings.Contains(line, ",") {
		return strings.Split(line, ",")
	}
	return strings.Fields(line)
}
