package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"go-approvals/internal/domain"
)

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var templateSources = map[domain.EventKind][2]string{
	domain.EventApprovalRequest: {
		`Approval requested: {{.BusinessObject.Type}} {{.BusinessObject.ID}}`,
		`Step "{{.StepName}}" of {{.DefinitionName}} is waiting for your decision.
{{if .AssignedRole}}Any member of role {{.AssignedRole}} may act.
{{end}}Please decide before {{.DueAt.Format "2006-01-02 15:04 MST"}}.`,
	},
	domain.EventApprovalReminder: {
		`Reminder: approval pending for {{.BusinessObject.Type}} {{.BusinessObject.ID}}`,
		`Step "{{.StepName}}" of {{.DefinitionName}} was due {{.DueAt.Format "2006-01-02 15:04 MST"}} and still has no decision.`,
	},
	domain.EventApprovalUrgentReminder: {
		`URGENT: approval for {{.BusinessObject.Type}} {{.BusinessObject.ID}} is about to expire`,
		`Step "{{.StepName}}" of {{.DefinitionName}} is overdue and will expire soon. Without a decision the request is closed as expired.`,
	},
	domain.EventApprovalReassigned: {
		`Approval reassigned: {{.BusinessObject.Type}} {{.BusinessObject.ID}}`,
		`Step "{{.StepName}}" of {{.DefinitionName}} has been reassigned to you.
{{if .Notes}}Note: {{.Notes}}
{{end}}Please decide before {{.DueAt.Format "2006-01-02 15:04 MST"}}.`,
	},
	domain.EventApprovalOrphaned: {
		`Action needed: approval for {{.BusinessObject.Type}} {{.BusinessObject.ID}} has no approver`,
		`Step "{{.StepName}}" of {{.DefinitionName}} is routed to role {{.AssignedRole}}, which has no active members. Reassign the step to continue.`,
	},
	domain.EventApprovalCompleted: {
		`{{.BusinessObject.Type}} {{.BusinessObject.ID}}: step "{{.StepName}}" {{decisionVerb .Decision}}`,
		`Step "{{.StepName}}" of {{.DefinitionName}} was {{decisionVerb .Decision}}.
{{if .Notes}}Notes: {{.Notes}}
{{end}}The request is now {{.InstanceStatus}}.`,
	},
	domain.EventApprovalExpired: {
		`Approval expired: {{.BusinessObject.Type}} {{.BusinessObject.ID}}`,
		`Step "{{.StepName}}" of {{.DefinitionName}} received no decision in time and the request has expired.`,
	},
}

var funcs = template.FuncMap{
	"decisionVerb": func(d domain.Decision) string {
		switch d {
		case domain.DecisionApprove:
			return "approved"
		case domain.DecisionReject:
			return "rejected"
		case domain.DecisionRequestChanges:
			return "sent back for changes"
		}
		return string(d)
	},
}

// Renderer turns events into email subjects and bodies.
type Renderer struct {
	templates map[domain.EventKind]emailTemplate
}

// NewRenderer parses the built-in templates for every event kind.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[domain.EventKind]emailTemplate, len(templateSources))}
	for kind, src := range templateSources {
		subject, err := template.New(string(kind) + ".subject").Funcs(funcs).Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", kind, err)
		}
		body, err := template.New(string(kind) + ".body").Funcs(funcs).Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", kind, err)
		}
		r.templates[kind] = emailTemplate{subject: subject, body: body}
	}
	return r, nil
}

func (r *Renderer) Render(ev domain.Event) (subject, body string, err error) {
	tpl, ok := r.templates[ev.Kind]
	if !ok {
		return "", "", fmt.Errorf("no template for event kind %q", ev.Kind)
	}
	var sb, bb bytes.Buffer
	if err := tpl.subject.Execute(&sb, ev); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", ev.Kind, err)
	}
	if err := tpl.body.Execute(&bb, ev); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", ev.Kind, err)
	}
	return sb.String(), bb.String(), nil
}
