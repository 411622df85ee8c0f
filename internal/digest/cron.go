package digest

import (
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// from now until the next fire time in loc. Returns 0 on parse error.
func nextCronDuration(expr string, now time.Time, loc *time.Location) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	if loc != nil {
		now = now.In(loc)
	}
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
