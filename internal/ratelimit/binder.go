package ratelimit

import (
	"fmt"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// Route associates a path prefix with either a preset name or a custom
// handler. Handler wins when both are set.
type Route struct {
	Prefix  string          `yaml:"prefix" validate:"required,startswith=/"`
	Profile string          `yaml:"profile"`
	Handler gin.HandlerFunc `yaml:"-"`
}

// Registrar is the subset of gin.IRoutes the binder needs.
type Registrar interface {
	Use(...gin.HandlerFunc) gin.IRoutes
}

// Bind registers one middleware per route, in order. Each middleware only
// acts on requests under its prefix; overlapping prefixes all run, in the
// order given, until one aborts the request.
func Bind(r Registrar, profiles *Profiles, routes []Route) error {
	handlers := make([]gin.HandlerFunc, 0, len(routes))
	for _, rt := range routes {
		h := rt.Handler
		if h == nil {
			if profiles == nil {
				return fmt.Errorf("bind %s: %w: %q", rt.Prefix, ErrUnknownProfile, rt.Profile)
			}
			l, err := profiles.Get(rt.Profile)
			if err != nil {
				return fmt.Errorf("bind %s: %w", rt.Prefix, err)
			}
			h = l.Handler()
		}
		handlers = append(handlers, scoped(rt.Prefix, h))
	}

	for _, h := range handlers {
		r.Use(h)
	}
	return nil
}

func scoped(prefix string, h gin.HandlerFunc) gin.HandlerFunc {
	prefix = normalizePrefix(prefix)
	return func(c *gin.Context) {
		if matchPrefix(path.Clean("/"+c.Request.URL.Path), prefix) {
			h(c)
		}
	}
}

func normalizePrefix(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	return path.Clean("/" + p)
}

// matchPrefix reports whether p is prefix itself or lies beneath it on a
// segment boundary.
func matchPrefix(p, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(p, prefix) {
		return false
	}
	return len(p) == len(prefix) || p[len(prefix)] == '/'
}
