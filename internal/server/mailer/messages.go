package mailer

import (
	"fmt"
	"html"
)

// SignupMessage is the confirmation sent after an account is created.
func SignupMessage(from, to string) Message {
	return Message{
		To:      to,
		From:    from,
		Subject: "Signup succeeded!",
		HTML:    "<h1>You successfully signed up!</h1>",
	}
}

// ResetMessage carries the single-use link that leads to the new-password form.
func ResetMessage(from, to, link string) Message {
	href := html.EscapeString(link)
	return Message{
		To:      to,
		From:    from,
		Subject: "Password reset",
		HTML: fmt.Sprintf(`<p>You requested a password reset</p>
<p>Click this <a href="%s">link</a> to set a new password.</p>`, href),
	}
}
