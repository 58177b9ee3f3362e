// Package emailsvc provides the core.EmailService implementations.
package emailsvc

import "github.com/cornelabs/lms/core"

// NewService returns the SendGrid service when an API key is configured and the console service otherwise.
func NewService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.SendgridApiKey != "" {
		return NewSendgridService(conf, logger)
	}
	return NewConsoleService(conf, logger)
}
