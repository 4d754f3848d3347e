package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Scheduled batch run over every mailbox, every 5 minutes. Empty disables it.
	CronScheduleRunOnce string `env:"CRON_SCHEDULE_RUN_ONCE" envDefault:"0 */5 * * * *"`
}
