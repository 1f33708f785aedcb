package httpapi

import (
	"context"

	"github.com/rs/zerolog"

	"modelserve/internal/sanitize"
)

// defaultMaxBodyBytes bounds JSON request bodies when Options leaves it unset.
const defaultMaxBodyBytes int64 = 1 << 20

// Options configures the HTTP front door. It is captured by value when the
// router is built and never changes afterwards.
type Options struct {
	// Title of the generated demo page.
	Title string
	// FieldNames are the inputs of the generated demo page, in order.
	FieldNames []string
	// StaticDir, when set, replaces the generated page: / serves its
	// index.html and every other GET path is served from it.
	StaticDir string
	// Sanitizer is applied to every prediction before it is returned.
	Sanitizer sanitize.Sanitizer
	// Logger receives access and prediction logs. Nil disables logging.
	Logger *zerolog.Logger
	// MaxBodyBytes limits request bodies; zero means 1 MiB.
	MaxBodyBytes int64
	// BaseContext, once canceled, stops in-flight predictions; they answer 503.
	BaseContext context.Context
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	if o.BaseContext == nil {
		o.BaseContext = context.Background()
	}
	o.FieldNames = append([]string(nil), o.FieldNames...)
	return o
}
