package indices

import (
	cron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// StartCron schedules the nightly full sync. The expression has a leading seconds field.
func StartCron(spec string) (*cron.Cron, error) {
	crontab := cron.New(cron.WithSeconds())
	if _, err := crontab.AddFunc(spec, indicesFullSync); err != nil {
		return nil, err
	}
	crontab.Start()
	return crontab, nil
}

func indicesFullSync() {
	if err := IndicesFullSyncFunc(); err != nil {
		logrus.Errorf("scheduled indices full sync: %v", err)
	}
}
