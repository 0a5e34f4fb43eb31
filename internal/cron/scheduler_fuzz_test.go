package cron

import "testing"

func FuzzScheduleParse(f *testing.F) {
	for _, seed := range []string{"*/5 * * * *", "@every 10m", "@hourly", "0 0 1 1 *", "invalid", "", "60 * * * *", "@every -1s"} {
		f.Add(seed)
	}
	f.Fuzz(func(_ *testing.T, expr string) {
		_, _ = parser.Parse(expr)
	})
}
