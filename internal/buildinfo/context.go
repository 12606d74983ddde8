// Package buildinfo carries build-time metadata injected at link time
package buildinfo

import "fmt"

const unknown = "unknown"

// Context contains build-time metadata that is not user-configurable
type Context struct {
	Version   string // git version tag
	BuildDate string // RFC3339 build time
}

// GetVersion returns the version or "unknown"
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate returns the build date or "unknown"
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// String formats the version line printed by --version
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s)", c.GetVersion(), c.GetBuildDate())
}
