package policy

import (
	"strings"
)

// Redirect maps a request path to a fixed destination before any policy runs.
type Redirect struct {
	Source      string `mapstructure:"source" json:"source" yaml:"source" validate:"required,startswith=/"`
	Destination string `mapstructure:"destination" json:"destination" yaml:"destination" validate:"required"`
	Permanent   bool   `mapstructure:"permanent" json:"permanent" yaml:"permanent"`
}

// Table is the static routing policy of the edge router. It is built once at
// start-up and shared read-only by every request.
type Table struct {
	LoginPath     string `mapstructure:"login_path" json:"login_path" yaml:"login_path" validate:"required,startswith=/"`
	HomePath      string `mapstructure:"home_path" json:"home_path" yaml:"home_path" validate:"required,startswith=/"`
	ForbiddenPath string `mapstructure:"forbidden_path" json:"forbidden_path" yaml:"forbidden_path" validate:"required,startswith=/"`
	AdminPrefix   string `mapstructure:"admin_prefix" json:"admin_prefix" yaml:"admin_prefix" validate:"required,startswith=/"`
	AdminRole     string `mapstructure:"admin_role" json:"admin_role" yaml:"admin_role" validate:"required"`
	APIPrefix     string `mapstructure:"api_prefix" json:"api_prefix" yaml:"api_prefix" validate:"required,startswith=/"`
	AllowedOrigin string `mapstructure:"allowed_origin" json:"allowed_origin" yaml:"allowed_origin"`

	Protected   []string `mapstructure:"protected" json:"protected" yaml:"protected"`
	PublicOnly  []string `mapstructure:"public_only" json:"public_only" yaml:"public_only"`
	Shared      []string `mapstructure:"shared" json:"shared" yaml:"shared"`
	RateLimited []string `mapstructure:"rate_limited" json:"rate_limited" yaml:"rate_limited"`

	// Tenants maps a subdomain label to its path prefix. Labels without an
	// entry resolve to DefaultTenant.
	Tenants         map[string]string `mapstructure:"tenants" json:"tenants" yaml:"tenants"`
	DefaultTenant   string            `mapstructure:"default_tenant" json:"default_tenant" yaml:"default_tenant" validate:"required,startswith=/"`
	TenantRootPaths []string          `mapstructure:"tenant_root_paths" json:"tenant_root_paths" yaml:"tenant_root_paths"`
	DefaultSubPath  string            `mapstructure:"default_sub_path" json:"default_sub_path" yaml:"default_sub_path" validate:"required,startswith=/"`

	AssetPrefixes      []string   `mapstructure:"asset_prefixes" json:"asset_prefixes" yaml:"asset_prefixes"`
	AssetPaths         []string   `mapstructure:"asset_paths" json:"asset_paths" yaml:"asset_paths"`
	Redirects          []Redirect `mapstructure:"redirects" json:"redirects" yaml:"redirects" validate:"dive"`
	StripTrailingSlash bool       `mapstructure:"strip_trailing_slash" json:"strip_trailing_slash" yaml:"strip_trailing_slash"`
}

// Default returns the policy the medical records front end ships with.
func Default() *Table {
	return &Table{
		LoginPath:     "/login",
		HomePath:      "/dashboard",
		ForbiddenPath: "/403",
		AdminPrefix:   "/admin",
		AdminRole:     "admin",
		APIPrefix:     "/api",
		AllowedOrigin: "http://localhost:3000",

		Protected:   []string{"/dashboard", "/admin", "/profile", "/superadmin", "/medical"},
		PublicOnly:  []string{"/login", "/register"},
		Shared:      []string{"/login", "/register", "/403", "/404"},
		RateLimited: []string{"/api", "/login"},

		Tenants:         map[string]string{"superadmin": "/superadmin"},
		DefaultTenant:   "/medical",
		TenantRootPaths: []string{"/", "/dashboard"},
		DefaultSubPath:  "/dashboard",

		AssetPrefixes: []string{"/_next"},
		AssetPaths:    []string{"/favicon.ico", "/robots.txt", "/sitemap.xml"},
		Redirects: []Redirect{
			{Source: "/home", Destination: "/", Permanent: true},
		},
		StripTrailingSlash: true,
	}
}

func hasAnyPrefix(prefixes []string, path string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// IsProtected reports whether path requires a session.
func (t *Table) IsProtected(path string) bool {
	return hasAnyPrefix(t.Protected, path)
}

// IsPublicOnly reports whether path is reserved for anonymous visitors.
func (t *Table) IsPublicOnly(path string) bool {
	return hasAnyPrefix(t.PublicOnly, path)
}

// IsShared reports whether path is exempt from tenant rewriting.
func (t *Table) IsShared(path string) bool {
	return hasAnyPrefix(t.Shared, path)
}

func (t *Table) IsAdmin(path string) bool {
	return t.AdminPrefix != "" && strings.HasPrefix(path, t.AdminPrefix)
}

func (t *Table) IsAPI(path string) bool {
	return t.APIPrefix != "" && strings.HasPrefix(path, t.APIPrefix)
}

// IsRateLimited reports whether requests to path count against the client quota.
func (t *Table) IsRateLimited(path string) bool {
	return hasAnyPrefix(t.RateLimited, path)
}

// IsAsset reports whether path is a build asset or looks like a static file.
func (t *Table) IsAsset(path string) bool {
	if hasAnyPrefix(t.AssetPrefixes, path) {
		return true
	}
	for _, p := range t.AssetPaths {
		if path == p {
			return true
		}
	}
	last := path[strings.LastIndex(path, "/")+1:]
	return strings.Contains(last, ".")
}

// IsTenantRoot reports whether path is rewritten even when the host has no
// subdomain label.
func (t *Table) IsTenantRoot(path string) bool {
	for _, p := range t.TenantRootPaths {
		if path == p {
			return true
		}
	}
	return false
}

// TenantPrefix resolves the path prefix for a subdomain label.
func (t *Table) TenantPrefix(label string) string {
	if prefix, ok := t.Tenants[strings.ToLower(label)]; ok && label != "" {
		return prefix
	}
	return t.DefaultTenant
}

// FindRedirect returns the configured redirect for an exact path match.
func (t *Table) FindRedirect(path string) (Redirect, bool) {
	for _, r := range t.Redirects {
		if r.Source == path {
			return r, true
		}
	}
	return Redirect{}, false
}
