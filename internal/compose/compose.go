// Package compose builds outreach email subjects and bodies. Each stage
// has its own template; an optional model-backed pass personalizes the
// initial body when compose.use_model is set.
package compose

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/config"
	"github.com/sbiradar/outreach-cli/internal/model"
	"github.com/sbiradar/outreach-cli/pkg/anthropic"
)

// Composer renders per-stage outreach messages.
type Composer struct {
	cfg    config.ComposeConfig
	client anthropic.Client
}

// New builds a Composer. The model client may be nil; composition then
// always uses the static templates.
func New(cfg config.ComposeConfig, client anthropic.Client) *Composer {
	return &Composer{cfg: cfg, client: client}
}

// templateData is the input to every stage template.
type templateData struct {
	JobTitle      string
	Company       string
	SenderName    string
	SenderPhone   string
	ExperienceYrs int
	SkillsArea    string
	AttachmentRef string
	DaysSince     int
}

// Subject prefixes for follow-up stages, escalating in directness.
var stagePrefix = map[model.Stage]string{
	model.StageDay3:  "Following up: ",
	model.StageDay7:  "Checking in: ",
	model.StageDay14: "Final follow-up: ",
}

var subjectTmpl = template.Must(template.New("subject").Parse(
	`Application: {{.JobTitle}} at {{.Company}} - {{.ExperienceYrs}}+ YOE | {{.SkillsArea}}`))

var initialBodyTmpl = template.Must(template.New("initial").Parse(
	`Dear Hiring Team,

I am writing to apply for the {{.JobTitle}} position at {{.Company}}. I bring {{.ExperienceYrs}} years of experience in {{.SkillsArea}} and can join immediately.

My resume is available here: {{.AttachmentRef}}

I would welcome the chance to discuss how my background fits your team's needs.

Best regards,
{{.SenderName}}
{{.SenderPhone}}`))

var day3BodyTmpl = template.Must(template.New("day3").Parse(
	`Dear Hiring Team,

I hope this email finds you well. I am following up on my application for the {{.JobTitle}} position at {{.Company}} that I submitted {{.DaysSince}} days ago.

I remain very interested in this opportunity and would welcome the chance to discuss how my skills align with your team's needs.

Best regards,
{{.SenderName}}
{{.SenderPhone}}`))

var day7BodyTmpl = template.Must(template.New("day7").Parse(
	`Dear Recruitment Team,

I wanted to check in on my application for the {{.JobTitle}} role at {{.Company}}.

I understand you may be reviewing many applications. I would genuinely appreciate any update on the status of mine.

Looking forward to hearing from you.

Best regards,
{{.SenderName}}
{{.SenderPhone}}`))

var day14BodyTmpl = template.Must(template.New("day14").Parse(
	`Hi,

This is a final follow-up on my {{.JobTitle}} application from {{.DaysSince}} days ago.

I am still interested in the role; if the position has been filled or my profile is not a fit, no response is needed and I will close my application on my side.

Thanks,
{{.SenderName}}
{{.SenderPhone}}`))

var stageBody = map[model.Stage]*template.Template{
	model.StageInitial: initialBodyTmpl,
	model.StageDay3:    day3BodyTmpl,
	model.StageDay7:    day7BodyTmpl,
	model.StageDay14:   day14BodyTmpl,
}

// stageDaysSince is the nominal age of the application at each stage,
// referenced in the body copy.
var stageDaysSince = map[model.Stage]int{
	model.StageDay3:  3,
	model.StageDay7:  7,
	model.StageDay14: 14,
}

// Compose renders the subject and body for one attempt stage.
func (c *Composer) Compose(ctx context.Context, lead model.JobLead, stage model.Stage) (subject, body string, err error) {
	data := templateData{
		JobTitle:      lead.Title,
		Company:       lead.Company,
		SenderName:    c.cfg.SenderName,
		SenderPhone:   c.cfg.SenderPhone,
		ExperienceYrs: c.cfg.ExperienceYrs,
		SkillsArea:    c.cfg.SkillsArea,
		AttachmentRef: c.cfg.AttachmentRef,
		DaysSince:     stageDaysSince[stage],
	}

	var subjBuf strings.Builder
	if err := subjectTmpl.Execute(&subjBuf, data); err != nil {
		return "", "", eris.Wrap(err, "compose: subject")
	}
	subject = stagePrefix[stage] + subjBuf.String()

	tmpl, ok := stageBody[stage]
	if !ok {
		return "", "", eris.Errorf("compose: no template for stage %s", stage)
	}
	var bodyBuf strings.Builder
	if err := tmpl.Execute(&bodyBuf, data); err != nil {
		return "", "", eris.Wrap(err, "compose: body")
	}
	body = bodyBuf.String()

	// Only the initial send gets the model pass; follow-ups stay short
	// and templated.
	if stage == model.StageInitial && c.cfg.UseModel && c.client != nil {
		personalized, perr := c.personalize(ctx, lead, body)
		if perr != nil {
			zap.L().Warn("personalization failed, using template",
				zap.String("company", lead.Company),
				zap.Error(perr))
		} else {
			body = personalized
		}
	}
	return subject, body, nil
}

const personalizeSystem = `You rewrite a job-application email to be specific to the company and role while keeping it under 160 words, professional, and free of invented facts. Keep the sender's name, phone, and resume link exactly as given. Return only the rewritten email body.`

func (c *Composer) personalize(ctx context.Context, lead model.JobLead, draft string) (string, error) {
	prompt := fmt.Sprintf("Company: %s\nRole: %s\nKeywords: %s\n\nDraft:\n%s",
		lead.Company, lead.Title, strings.Join(lead.Keywords, ", "), draft)

	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.cfg.Model,
		MaxTokens: 1024,
		System:    personalizeSystem,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(c.cfg.Model, "compose")
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", eris.New("compose: empty model response")
	}
	return text, nil
}
