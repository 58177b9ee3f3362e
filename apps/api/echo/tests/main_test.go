package tests

import (
	"os"
	"testing"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/user"
	"github.com/cornelabs/lms/services/logger"
)

func TestMain(m *testing.M) {
	// templates & password lists are package globals: load them once
	conf := &core.Config{
		TestMode:        true,
		AppName:         "LMS",
		FrontendBaseURL: "http://localhost:3000",
	}
	logger := logsvc.NewLogger(conf, "TEST")
	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	os.Exit(m.Run())
}
