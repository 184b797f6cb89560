package router

import (
	"context"
	"strings"

	"github.com/pH0enix46/EMR/pkg/policy"
	"github.com/pH0enix46/EMR/pkg/utils"
)

// TenantPath maps a browser path onto the tenant-scoped path for label. It
// reports false when the path is served as is. Rewriting an already
// rewritten path is a no-op.
func TenantPath(t *policy.Table, path, label string) (string, bool) {
	if t.IsShared(path) {
		return path, false
	}
	if label == "" && !t.IsTenantRoot(path) {
		return path, false
	}

	prefix := t.TenantPrefix(label)
	target := path
	if path == "/" {
		target = t.DefaultSubPath
	}

	if strings.HasPrefix(target, prefix) {
		return path, false
	}
	return prefix + target, true
}

func (p *Pipeline) tenantStage(_ context.Context, req *Request) *Outcome {
	label := utils.GetSubdomain(req.Host)

	rewritten, ok := TenantPath(p.table, req.Path, label)
	if !ok {
		return nil
	}

	prefix := p.table.TenantPrefix(label)
	out := &Outcome{
		Action: Rewrite,
		Reason: ReasonTenant,
		Path:   rewritten,
		Query:  req.RawQuery,
		Tenant: prefix,
	}
	// The prefix and default sub-path are plain; only the visible path can
	// carry escapes.
	if req.Path != "/" && req.EscapedPath != "" && req.EscapedPath != req.Path {
		out.RawPath = prefix + req.EscapedPath
	}
	return out
}
