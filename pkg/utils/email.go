package utils

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Email is a rendered message ready for a mail transport.
type Email struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Common header template for all emails
const emailHeader = `
<div style="font-family: 'Inter', Arial, sans-serif; background-color: #f0fdf4; padding: 32px 16px;">
	<div style="max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 16px; overflow: hidden;">
		<div style="background: linear-gradient(135deg, #22c55e, #16a34a); padding: 28px; text-align: center;">
			<h1 style="color: #ffffff; margin: 0; font-size: 24px; letter-spacing: 0.08em; text-transform: uppercase;">%s</h1>
		</div>
`

// Common footer template for all emails
const emailFooter = `
		<div style="background-color: #f8fafc; padding: 28px; text-align: center;">
			<p style="color: #64748b; font-size: 13px; margin: 0;">This is an automated message, please do not reply to this email.</p>
			<p style="color: #94a3b8; font-size: 12px; margin: 12px 0 0;">&copy; %d %s. All rights reserved.</p>
		</div>
	</div>
</div>
`

func wrap(appName, body string, year int) string {
	name := html.EscapeString(appName)
	return fmt.Sprintf(emailHeader, name) + body + fmt.Sprintf(emailFooter, year, name)
}

// ResetCodeEmail renders the message carrying a password reset code.
func ResetCodeEmail(appName, to, code string, ttl time.Duration, now time.Time) Email {
	minutes := int(ttl.Minutes())
	body := fmt.Sprintf(`
		<div style="padding: 36px 32px;">
			<h2 style="color: #166534; margin: 0 0 12px; font-size: 22px;">Reset Password</h2>
			<p style="color: #475569; line-height: 1.7; margin: 0 0 24px;">We received a request to reset the password for your account. Enter the code below to continue.</p>
			<div style="background-color: #ecfdf5; border: 1px solid #bbf7d0; border-radius: 14px; padding: 28px; text-align: center;">
				<p style="color: #16a34a; font-size: 14px; letter-spacing: 0.3em; text-transform: uppercase; margin: 0 0 12px;">Your code</p>
				<h1 style="color: #15803d; font-size: 42px; letter-spacing: 0.35em; margin: 0; font-family: 'Courier New', Courier, monospace;">%s</h1>
			</div>
			<ul style="color: #475569; line-height: 1.8; margin: 28px 0 0; padding: 0 0 0 18px;">
				<li>The code is valid for <strong>%d minutes</strong>.</li>
				<li>Never share this code with anyone.</li>
				<li>If you did not ask for a reset you can ignore this email.</li>
			</ul>
		</div>`, html.EscapeString(code), minutes)

	text := strings.Join([]string{
		"Reset Password - " + appName,
		"",
		"Your code: " + code,
		"",
		fmt.Sprintf("The code is valid for %d minutes.", minutes),
		"",
		"If you did not ask for a reset you can ignore this email.",
	}, "\n")

	return Email{
		To:      []string{to},
		Subject: "Reset Password - Your OTP Code",
		HTML:    wrap(appName, body, now.Year()),
		Text:    text,
	}
}

// PasswordResetAlertEmail renders the administrator notice sent after a
// password was reset.
func PasswordResetAlertEmail(appName, adminEmail, userEmail, userName string, now time.Time) Email {
	when := now.UTC().Format("2006-01-02 15:04:05 MST")
	body := fmt.Sprintf(`
		<div style="padding: 30px;">
			<h2 style="color: #333;">User Reset Password</h2>
			<p style="color: #666; line-height: 1.6;">The following user has reset their password:</p>
			<div style="background-color: #f3f4f6; padding: 20px; margin: 20px 0; border-radius: 8px;">
				<p style="margin: 5px 0;"><strong>Email:</strong> %s</p>
				<p style="margin: 5px 0;"><strong>Name:</strong> %s</p>
				<p style="margin: 5px 0;"><strong>Time:</strong> %s</p>
			</div>
		</div>`, html.EscapeString(userEmail), html.EscapeString(userName), when)

	return Email{
		To:      []string{adminEmail},
		Subject: "Notification: User Reset Password",
		HTML:    wrap(appName, body, now.Year()),
		Text:    fmt.Sprintf("User %s (%s) reset their password at %s.", userName, userEmail, when),
	}
}
