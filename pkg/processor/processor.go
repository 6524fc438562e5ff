// Package processor provides identity-bearing image transforms applied to
// downloaded images before they are displayed and cached.
package processor

import (
	"image"
	"strconv"
	"strings"
)

// Processor is a pure, synchronous image transform.
//
// Identifier must encode every parameter that affects the output pixels,
// including an algorithm version, because it becomes part of the cache key.
// Two processors with equal identifiers must produce equal output.
type Processor interface {
	// Identifier returns the stable identity of this processor configuration.
	Identifier() string
	// Process transforms img. It returns nil when the input cannot be processed,
	// in which case callers fall back to the unprocessed image.
	Process(img image.Image) image.Image
}

// Chain applies a sequence of processors in order.
type Chain struct {
	processors []Processor
}

// NewChain creates a Chain. Nil entries are ignored.
func NewChain(processors ...Processor) *Chain {
	c := &Chain{}
	for _, p := range processors {
		if p != nil {
			c.processors = append(c.processors, p)
		}
	}
	return c
}

// Identifier quotes each step so that distinct chains never share an identity.
func (c *Chain) Identifier() string {
	parts := make([]string, len(c.processors))
	for i, p := range c.processors {
		parts[i] = strconv.Quote(p.Identifier())
	}
	return "chain(" + strings.Join(parts, ",") + ")"
}

// Process runs every step and returns nil as soon as one of them does.
func (c *Chain) Process(img image.Image) image.Image {
	if img == nil {
		return nil
	}
	for _, p := range c.processors {
		img = p.Process(img)
		if img == nil {
			return nil
		}
	}
	return img
}
