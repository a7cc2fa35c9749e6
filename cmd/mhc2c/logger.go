package main

import (
	"go.uber.org/zap"

	"github.com/consensus-cluster/mhc2c/consensus/engine"
)

// zapLogger adapts a zap sugared logger to the engine's Logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func newZapLogger(l *zap.Logger) *zapLogger {
	return &zapLogger{sugar: l.Sugar()}
}

func (z *zapLogger) Info(msg string, fields ...any)  { z.sugar.Infow(msg, fields...) }
func (z *zapLogger) Debug(msg string, fields ...any) { z.sugar.Debugw(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...any)  { z.sugar.Warnw(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...any) { z.sugar.Errorw(msg, fields...) }

func (z *zapLogger) Bind(fields ...any) engine.Logger {
	return &zapLogger{sugar: z.sugar.With(fields...)}
}
