package engine

import (
	"github.com/tliron/commonlog"
)

type Option func(*Parser)

// WithHandler registers the event consumer and the user data passed to it.
func WithHandler(h Handler, userData any) Option {
	return func(p *Parser) {
		p.handler = h
		p.userData = userData
	}
}

// WithMaxBufferSize limits the size of a single token, including the bytes
// a parser holds while waiting for a token to complete. Chunks of any size
// are accepted as long as no token exceeds the limit. Zero means no limit.
func WithMaxBufferSize(n int) Option {
	return func(p *Parser) {
		p.maxBuffer = n
	}
}

// WithMaxDepth limits the nesting depth of push transitions.
func WithMaxDepth(n int) Option {
	return func(p *Parser) {
		p.maxDepth = n
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Parser) {
		p.metrics = m
	}
}

// WithName scopes the parser's log output.
func WithName(name string) Option {
	return func(p *Parser) {
		p.log = commonlog.NewScopeLogger(log, name)
	}
}
