// Package notify delivers account e-mails without blocking the request that
// triggered them.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

// Kind identifies a notification template.
type Kind string

const (
	KindWelcome        Kind = "welcome"
	KindRecentAccess   Kind = "recent_access"
	KindRecovery       Kind = "recovery"
	KindProfileUpdate  Kind = "profile_update"
	KindPasswordChange Kind = "password_change"
)

// Payload holds the template values of a notification.
type Payload map[string]string

// Notifier sends a notification. Implementations must not block the caller
// on delivery and never report delivery failures back.
type Notifier interface {
	Notify(kind Kind, recipient string, payload Payload)
}

// Message is a rendered e-mail.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a rendered message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var subjects = map[Kind]string{
	KindWelcome:        "Account created",
	KindRecentAccess:   "New sign-in to your account",
	KindRecovery:       "Password recovery",
	KindProfileUpdate:  "Profile updated",
	KindPasswordChange: "Password changed",
}

var bodies = template.Must(template.New("notify").Parse(`
{{define "welcome"}}<h1>Welcome!</h1>
<p>Your account was created.</p>
<p><strong>Account ID:</strong> {{.uid}}</p>{{end}}

{{define "recent_access"}}<h2>New sign-in detected</h2>
<p><strong>Account ID:</strong> {{.uid}}</p>
<p><strong>IP address:</strong> {{.ip}}</p>
<p><strong>Time:</strong> {{.time}}</p>
<p>If this was not you, change your password now.</p>{{end}}

{{define "recovery"}}<h1>Reset your password</h1>
<p>A password reset was requested for this account.</p>
<p><a href="{{.reset_url}}">Reset password</a></p>
<p><strong>Link valid until:</strong> {{.expires}}</p>
<p>If you did not ask for this, ignore this e-mail.</p>{{end}}

{{define "profile_update"}}<h2>Profile updated</h2>
<p><strong>New e-mail:</strong> {{.new_email}}</p>
<p><strong>Previous e-mail:</strong> {{.old_email}}</p>
<p><strong>Time:</strong> {{.time}}</p>
<p>If you do not recognize this change, secure your account.</p>{{end}}

{{define "password_change"}}<h2>Password changed</h2>
<p>Your password was updated at {{.time}}.</p>
<p>If you did not do this, reset your password immediately.</p>{{end}}
`))

// Render builds the message for kind.
func Render(kind Kind, recipient string, payload Payload) (Message, error) {
	subject, ok := subjects[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}

	var body bytes.Buffer
	if err := bodies.ExecuteTemplate(&body, string(kind), payload); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", kind, err)
	}

	return Message{To: recipient, Subject: subject, HTML: body.String()}, nil
}
