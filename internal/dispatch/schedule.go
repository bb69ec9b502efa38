package dispatch

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/beeflow/internal/telemetry"
)

// cronParser — парсер расписаний цикла: "@every 5s" или cron-выражение.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule разбирает расписание цикла.
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse dispatch schedule %q: %w", spec, err)
	}
	return schedule, nil
}

func observeCycle(d time.Duration) {
	telemetry.DispatchCycles.Inc()
	telemetry.DispatchCycleDuration.Observe(d.Seconds())
}
