// Package mailer renders account emails and delivers them over SMTP from a
// small pool of background workers, so HTTP handlers never wait on the mail
// server.
package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Kind names an email template.
type Kind string

const (
	KindActivation    Kind = "activation"
	KindResetPassword Kind = "reset_password"
)

// Message is a rendered email ready for a Sender.
type Message struct {
	Kind    Kind
	To      string
	Subject string
	HTML    string
}

type templateData struct {
	ProjectName string
	Username    string
	Email       string
	Link        string
	ValidHours  int
}

// Renderer builds Messages with links into the frontend.
type Renderer struct {
	projectName string
	frontendURL string
	validFor    time.Duration
}

func NewRenderer(projectName, frontendURL string, validFor time.Duration) *Renderer {
	return &Renderer{
		projectName: projectName,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		validFor:    validFor,
	}
}

func (r *Renderer) Activation(email, username, token string) (Message, error) {
	return r.render(KindActivation, email, username,
		fmt.Sprintf("%s - Activate your account %s", r.projectName, username),
		r.frontendURL+"/activate?token="+url.QueryEscape(token))
}

func (r *Renderer) ResetPassword(email, username, token string) (Message, error) {
	return r.render(KindResetPassword, email, username,
		fmt.Sprintf("%s - Password recovery for user %s", r.projectName, username),
		r.frontendURL+"/reset-password?token="+url.QueryEscape(token))
}

func (r *Renderer) render(kind Kind, email, username, subject, link string) (Message, error) {
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, string(kind)+".html", templateData{
		ProjectName: r.projectName,
		Username:    username,
		Email:       email,
		Link:        link,
		ValidHours:  int(r.validFor.Hours()),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: kind, To: email, Subject: subject, HTML: buf.String()}, nil
}
