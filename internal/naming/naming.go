// Package naming derives deterministic resource names from a deployment
// identity so parallel deployments never collide.
package naming

import "strings"

// Identity is the tuple every provisioned resource name is derived from.
type Identity struct {
	Service     string
	Account     string
	Region      string
	Environment string
}

// Name joins the identity parts with dashes, lowercased. Characters outside
// [a-z0-9-] become dashes, runs of dashes collapse and empty parts are
// skipped.
func Name(id Identity) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{id.Service, id.Account, id.Region, id.Environment} {
		if n := normalize(p); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "-")
}

func normalize(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if valid {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Names holds the names of every resource in the pipeline stack.
type Names struct {
	Job          string `json:"job"`
	StateMachine string `json:"state_machine"`
	ScheduleRule string `json:"schedule_rule"`
	JobRole      string `json:"job_role"`
	WorkflowRole string `json:"workflow_role"`
}

// Prefixes are the service part of each resource name.
type Prefixes struct {
	Job          string
	StateMachine string
	ScheduleRule string
	JobRole      string
	WorkflowRole string
}

// Resolve names every resource for one deployment.
func Resolve(p Prefixes, account, region, environment string) Names {
	name := func(service string) string {
		return Name(Identity{Service: service, Account: account, Region: region, Environment: environment})
	}
	return Names{
		Job:          name(p.Job),
		StateMachine: name(p.StateMachine),
		ScheduleRule: name(p.ScheduleRule),
		JobRole:      name(p.JobRole),
		WorkflowRole: name(p.WorkflowRole),
	}
}
