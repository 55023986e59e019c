package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	instance = zap.NewNop().Sugar()
	once     sync.Once
)

// Init builds the process logger. Later calls are no-ops.
func Init(development bool) (*zap.SugaredLogger, error) {
	var err error
	once.Do(func() {
		var l *zap.Logger
		if development {
			l, err = zap.NewDevelopment()
		} else {
			l, err = zap.NewProduction()
		}
		if err != nil {
			return
		}
		instance = l.Sugar().Named("messenger-sync")
	})
	return instance, err
}

// L returns the process logger, a no-op logger until Init succeeds.
func L() *zap.SugaredLogger {
	return instance
}

func Sync() {
	_ = instance.Sync()
}
