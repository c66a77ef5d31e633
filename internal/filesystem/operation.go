package filesystem

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/routefs/routefs/pkg/errors"
)

// operation tracks one kernel callback for logging and metrics
type operation struct {
	fs     *FileSystem
	name   string
	fields logrus.Fields
	start  time.Time
}

func (fs *FileSystem) begin(name string, fields logrus.Fields) *operation {
	return &operation{fs: fs, name: name, fields: fields, start: fs.clock()}
}

// end converts a recovered panic into an error, then logs and records the
// outcome. It must be called from a deferred function that passes recover().
func (op *operation) end(recovered interface{}, size int64, errp *error) {
	if recovered != nil {
		*errp = errors.Newf(errors.ErrCodePanicRecovered, "panic in %s handler: %v", op.name, recovered).
			WithComponent("filesystem").
			WithOperation(op.name).
			WithStack()
		op.fs.logger.WithFields(op.fields).WithField("panic", recovered).
			Errorf("Recovered panic in %s", op.name)
	}

	duration := op.fs.clock().Sub(op.start)
	err := *errp

	if op.fs.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		entry := op.fs.logger.WithFields(op.fields).WithField("duration", duration)
		if err != nil {
			entry = entry.WithField("code", errors.CodeOf(err)).WithError(err)
			if routeErr, ok := errors.AsRouteFSError(err); ok {
				entry = entry.WithField("detail", routeErr.String())
			}
		}
		entry.Debug(op.name)
	}

	if op.fs.metrics != nil {
		op.fs.metrics.RecordOperation(op.name, duration, size, err == nil)
		if err != nil {
			op.fs.metrics.RecordError(op.name, err)
		}
	}
}
