// Package logsvc logs through zap and reports to Rollbar.
package logsvc

import (
	"sync"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/user"
)

var rollbarOnce sync.Once

type Logger struct {
	sugar   *zap.SugaredLogger
	rollbar bool
}

var _ core.Logger = (*Logger)(nil)

// NewLogger returns a Logger named name. Rollbar reporting is enabled outside debug and test modes
// when a token is configured.
func NewLogger(conf *core.Config, name string) *Logger {
	var cfg zap.Config
	if conf.Debug || conf.TestMode {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	if conf.TestMode {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		zl = zap.NewNop()
	}

	enabled := conf.RollbarToken != "" && !conf.Debug && !conf.TestMode
	rollbarOnce.Do(func() {
		rollbar.SetToken(conf.RollbarToken)
		rollbar.SetEnvironment(conf.Env)
		rollbar.SetServerHost(conf.Server.Host)
		rollbar.SetCodeVersion(conf.Build)
		rollbar.SetStackTracer(errors.StackTracer)
		rollbar.SetEnabled(enabled)
	})

	return &Logger{sugar: zl.Sugar().Named(name), rollbar: enabled}
}

func (l *Logger) Sync() {
	_ = l.sugar.Sync()
	if l.rollbar {
		rollbar.Wait()
	}
}

// prepare splits args into zap key-values and rollbar args.
// expected fmt: error, map[string]interface{}, user.User
func (l *Logger) prepare(msg string, args []interface{}) ([]interface{}, []interface{}) {
	var usrSet bool
	kvs := make([]interface{}, 0, 2*len(args))
	rbArgs := make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)

	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			if usrSet { // only set one User
				continue
			}
			usrSet = true
			kvs = append(kvs, "user_id", a.ID)
			if l.rollbar {
				rollbar.SetPerson(a.ID, a.FullName, a.Email)
			}
		case error:
			kvs = append(kvs, "error", a)
			rbArgs = append(rbArgs, a)
		case map[string]interface{}:
			for k, v := range a {
				kvs = append(kvs, k, v)
			}
			rbArgs = append(rbArgs, a)
		default:
			kvs = append(kvs, "arg", a)
		}
	}
	if l.rollbar && !usrSet {
		rollbar.ClearPerson()
	}
	return kvs, rbArgs
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	kvs, _ := l.prepare(msg, args)
	l.sugar.Debugw(msg, kvs...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	kvs, rbArgs := l.prepare(msg, args)
	l.sugar.Infow(msg, kvs...)
	if l.rollbar {
		rollbar.Info(rbArgs...)
	}
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	kvs, rbArgs := l.prepare(msg, args)
	l.sugar.Warnw(msg, kvs...)
	if l.rollbar {
		rollbar.Warning(rbArgs...)
	}
}

func (l *Logger) Error(msg string, args ...interface{}) {
	kvs, rbArgs := l.prepare(msg, args)
	l.sugar.Errorw(msg, kvs...)
	if l.rollbar {
		rollbar.Error(rbArgs...)
	}
}

func (l *Logger) Fatal(msg string, args ...interface{}) {
	kvs, rbArgs := l.prepare(msg, args)
	if l.rollbar {
		rollbar.Critical(rbArgs...)
		rollbar.Wait()
	}
	l.sugar.Fatalw(msg, kvs...)
}
