// internal/utils/logger/config.go
package logger

// Config задает вывод логов процесса.
type Config struct {
	// Level - минимальный уровень ("debug", "info", "warn", "error"). Пустой означает info.
	Level string
	// LogFile - путь к JSON-логу; пустая строка отключает запись в файл.
	LogFile string

	// ротация lumberjack
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool

	// Development включает человекочитаемый энкодер разработки.
	Development bool
}

func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		LogFile:    "txdispatch.log",
		MaxSizeMB:  100,
		MaxAgeDays: 7,
		MaxBackups: 3,
		Compress:   true,
	}
}
