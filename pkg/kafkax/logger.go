package kafkax

import (
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/ghuser/inventory/pkg/logger"
)

// errorLogger routes kafka-go error output into log. Informational kafka-go
// output is not wired, which keeps broker chatter out of the application logs.
func errorLogger(log logger.Logger) kafka.Logger {
	return kafka.LoggerFunc(func(format string, args ...any) {
		log.Error("kafka: "+fmt.Sprintf(format, args...), "component", "kafka-go")
	})
}
