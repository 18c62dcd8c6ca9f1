package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external binary an engine or the probe shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Optional requirements degrade a feature instead of blocking it.
	Optional bool
}

// Status is the outcome of resolving one Requirement on PATH.
type Status struct {
	Requirement
	Available bool
	// Path is the resolved executable when Available.
	Path string
	// Detail explains why the binary is unavailable.
	Detail string
}

var lookPath = exec.LookPath

// CheckBinaries resolves each requirement, preserving input order.
func CheckBinaries(requirements []Requirement) []Status {
	out := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		out[i] = resolve(req)
	}
	return out
}

func resolve(req Requirement) Status {
	st := Status{Requirement: req}
	if req.Command == "" {
		st.Detail = "command not configured"
		return st
	}
	path, err := lookPath(req.Command)
	if err != nil {
		st.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return st
	}
	st.Available, st.Path = true, path
	return st
}

// Missing filters statuses down to unavailable, non-optional entries.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, st := range statuses {
		if st.Available || st.Optional {
			continue
		}
		out = append(out, st)
	}
	return out
}

// Describe renders statuses as "name: detail; name: detail".
func Describe(statuses []Status) string {
	var b strings.Builder
	for i, st := range statuses {
		if i > 0 {
			b.WriteString("; ")
		}
		detail := st.Detail
		if detail == "" {
			detail = "unavailable"
		}
		b.WriteString(st.Name + ": " + detail)
	}
	return b.String()
}
