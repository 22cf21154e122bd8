package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// Email is a rendered message.
type Email struct {
	Subject string
	Text    string
	HTML    string
}

var templateFuncs = map[string]interface{}{
	"join": func(items []string) string { return strings.Join(items, ", ") },
	"when": func(t time.Time, tz string) string {
		if loc, err := time.LoadLocation(tz); err == nil {
			t = t.In(loc)
		}
		return t.Format("Monday, January 2 at 3:04 PM MST")
	},
}

const textBody = `Hi {{.RecipientName}},

Your match this cycle is {{.Match.Name}}.
{{if .Reasons}}
Why you were matched:
{{range .Reasons}}  - {{.}}
{{end}}{{end}}
{{- if .Match.Bio}}
About {{.Match.Name}}: {{.Match.Bio}}
{{end}}
{{- if .Match.Location}}Based in: {{.Match.Location}}
{{end}}
{{- if .Match.Causes}}Causes: {{join .Match.Causes}}
{{end}}
{{- if .Match.Skills}}Skills: {{join .Match.Skills}}
{{end}}
{{- if .Match.HelpNeeded}}Looking for help with: {{.Match.HelpNeeded}}
{{end}}
{{- with .Meeting}}
We booked a time for you to meet: {{when .StartTime .TimeZone}}
{{- if .VideoURL}}
Video call: {{.VideoURL}}{{end}}
{{- if .ICSURL}}
Add to calendar: {{.ICSURL}}{{end}}
{{else}}
Reply to this email or reach out on the platform to set up a time to talk.
{{end}}
{{- if .Match.ProfileURL}}
View their profile: {{.Match.ProfileURL}}
{{end}}`

const htmlBody = `<!DOCTYPE html>
<html><body style="font-family: sans-serif; color: #1f2933;">
<p>Hi {{.RecipientName}},</p>
<p>Your match this cycle is <strong>{{.Match.Name}}</strong>.</p>
{{if .Reasons}}<h3>Why you were matched</h3>
<ul>{{range .Reasons}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Match.Bio}}<p>{{.Match.Bio}}</p>{{end}}
<ul>
{{if .Match.Location}}<li>Based in {{.Match.Location}}</li>{{end}}
{{if .Match.Causes}}<li>Causes: {{join .Match.Causes}}</li>{{end}}
{{if .Match.Values}}<li>Values: {{join .Match.Values}}</li>{{end}}
{{if .Match.Skills}}<li>Skills: {{join .Match.Skills}}</li>{{end}}
{{if .Match.WorkStyle}}<li>Work style: {{.Match.WorkStyle}}</li>{{end}}
{{if .Match.HelpNeeded}}<li>Looking for help with: {{.Match.HelpNeeded}}</li>{{end}}
</ul>
{{range .Match.Aim}}<p><em>{{.Title}}</em>{{if .Summary}}: {{.Summary}}{{end}}</p>{{end}}
{{with .Meeting}}<h3>Your meeting</h3>
<p>{{when .StartTime .TimeZone}}</p>
{{if .VideoURL}}<p><a href="{{.VideoURL}}">Join the video call</a></p>{{end}}
{{if .ICSURL}}<p><a href="{{.ICSURL}}">Add to calendar</a></p>{{end}}
{{else}}<p>Reach out to set up a time to talk.</p>{{end}}
{{if .Match.ProfileURL}}<p><a href="{{.Match.ProfileURL}}">View {{.Match.Name}}'s profile</a></p>{{end}}
</body></html>`

var (
	textTmpl = texttemplate.Must(texttemplate.New("match.txt").Funcs(templateFuncs).Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("match.html").Funcs(templateFuncs).Parse(htmlBody))
)

// Render builds the match email for one recipient.
func Render(p Payload) (Email, error) {
	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, p); err != nil {
		return Email{}, fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTmpl.Execute(&html, p); err != nil {
		return Email{}, fmt.Errorf("render html body: %w", err)
	}
	return Email{
		Subject: fmt.Sprintf("Your civic match: meet %s", p.Match.Name),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
