// Package menu loads the dish catalogue that order line items are checked
// against.
package menu

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Catalog is a read-only set of dish names.
type Catalog interface {
	// Contains reports whether the dish is on the menu. Matching ignores
	// case and surrounding or repeated whitespace.
	Contains(name string) bool

	// Size returns the number of dishes.
	Size() int
}

// Loader reads a gzipped menu file with one dish name per line.
type Loader interface {
	Load(ctx context.Context, path string) (Catalog, error)
}

type setCatalog struct {
	dishes map[string]struct{}
}

// NewCatalog builds a catalogue from dish names.
func NewCatalog(names ...string) Catalog {
	c := &setCatalog{dishes: make(map[string]struct{}, len(names))}
	for _, n := range names {
		c.add(n)
	}
	return c
}

func (c *setCatalog) Contains(name string) bool {
	_, ok := c.dishes[normalise(name)]
	return ok
}

func (c *setCatalog) Size() int {
	return len(c.dishes)
}

func (c *setCatalog) add(name string) {
	if key := normalise(name); key != "" {
		c.dishes[key] = struct{}{}
	}
}

func normalise(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// readCatalog parses one dish per line. Blank lines and lines starting with
// '#' are skipped.
func readCatalog(ctx context.Context, r io.Reader) (*setCatalog, error) {
	c := &setCatalog{dishes: make(map[string]struct{}, 256)}

	scanner := bufio.NewScanner(r)
	lines := 0
	for scanner.Scan() {
		if lines%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		lines++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c.add(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read menu: %w", err)
	}
	return c, nil
}
