// Package placeholder synthesizes lightweight stand-in visuals for resources
// that are still pending or have permanently failed. Generation is pure:
// declared dimensions in, an inline SVG data URI out. No network access, no
// failure modes.
package placeholder

import (
	"encoding/base64"
	"fmt"
)

// Default placeholder colors.
const (
	defaultPendingFill = "#e2e5e9"
	defaultErrorFill   = "#f3d6d6"
	defaultStrokeFill  = "#b9bec6"
)

// Provider generates placeholder visuals.
type Provider struct {
	pendingFill string
	errorFill   string
	strokeFill  string
}

// Option applies a configuration option to the Provider.
type Option func(*Provider)

// WithPendingFill sets the background color of pending placeholders.
func WithPendingFill(color string) Option {
	return func(p *Provider) {
		if color != "" {
			p.pendingFill = color
		}
	}
}

// WithErrorFill sets the background color of error placeholders.
func WithErrorFill(color string) Option {
	return func(p *Provider) {
		if color != "" {
			p.errorFill = color
		}
	}
}

// New creates a Provider with configuration options.
func New(opts ...Option) *Provider {
	p := &Provider{
		pendingFill: defaultPendingFill,
		errorFill:   defaultErrorFill,
		strokeFill:  defaultStrokeFill,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Pending returns a placeholder for a resource that has not loaded yet.
func (p *Provider) Pending(width, height int) string {
	width, height = clampDims(width, height)
	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d"><rect width="%d" height="%d" fill="%s"/></svg>`,
		width, height, width, height, width, height, p.pendingFill,
	)
	return encode(svg)
}

// Error returns a placeholder for a resource that exhausted its retries. A
// diagonal cross distinguishes it from the pending variant.
func (p *Provider) Error(width, height int) string {
	width, height = clampDims(width, height)
	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d"><rect width="%d" height="%d" fill="%s"/><path d="M0 0L%d %dM%d 0L0 %d" stroke="%s" stroke-width="2"/></svg>`,
		width, height, width, height, width, height, p.errorFill,
		width, height, width, height, p.strokeFill,
	)
	return encode(svg)
}

// clampDims substitutes a sane square for missing or negative dimensions.
func clampDims(width, height int) (int, int) {
	if width <= 0 {
		width = 300
	}
	if height <= 0 {
		height = 150
	}
	return width, height
}

func encode(svg string) string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}
