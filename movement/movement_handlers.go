package movement

import (
	"github.com/sirupsen/logrus"
)

// MovementHandler reacts to a committed movement. It returns nil when the movement is not its concern.
type MovementHandler func(m *Movement) *HandleResult

type HandleResult struct {
	Success           bool
	Message           string
	HandlerIdentifier string
}

var MovementHandlers []MovementHandler

var InvokeHandlersFunc = invokeHandlers

// Publish hands committed movements to the registered handlers. Nil entries are skipped.
func Publish(records ...*Movement) {
	for _, r := range records {
		if r != nil && InvokeHandlersFunc != nil {
			InvokeHandlersFunc(r)
		}
	}
}

func invokeHandlers(record *Movement) []HandleResult {
	results := []HandleResult{}
	for _, handler := range MovementHandlers {
		logrus.Debugf("pre handle movement %d (%s %s)", record.ID, record.Action, record.WorkName)
		r := handler(record)
		if r == nil {
			continue
		}

		results = append(results, *r)
		if r.Success {
			logrus.Info("post handle movement. ", r)
		} else {
			logrus.Error("post handle movement error. ", r)
		}
	}
	return results
}
