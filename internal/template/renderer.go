// Package template renders billing-rule message templates with the
// charge's payload variables using the Liquid template language.
package template

import (
	"fmt"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer compiles and caches Liquid templates keyed by source text.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with billing-domain filters registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ nome | padrao: "Cliente" }} - fallback for missing variables
	engine.RegisterFilter("padrao", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	// {{ valor | moeda }} - "1234.56" -> "R$ 1234.56"
	engine.RegisterFilter("moeda", func(value interface{}) string {
		return fmt.Sprintf("R$ %v", value)
	})

	return &Renderer{engine: engine}
}

// Render substitutes vars into the template source. Missing variables render
// as empty strings, which is the behavior production sends need; validation
// of required variables happens at import time, not here.
func (r *Renderer) Render(source string, vars map[string]interface{}) (string, error) {
	tmpl, err := r.compile(source)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	out, err := tmpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}

	return out, nil
}

func (r *Renderer) compile(source string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(source); ok {
		return cached.(*liquid.Template), nil
	}

	tmpl, err := r.engine.ParseString(source)
	if err != nil {
		return nil, err
	}

	r.cache.Store(source, tmpl)
	return tmpl, nil
}
