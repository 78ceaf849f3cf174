package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicTaskClaimed(taskID string) string {
	return fmt.Sprintf("events.task.claimed.%s", taskID)
}

func TopicTaskCompleted(taskID string) string {
	return fmt.Sprintf("events.task.completed.%s", taskID)
}

func TopicTaskFailed(taskID string) string {
	return fmt.Sprintf("events.task.failed.%s", taskID)
}

func TopicTaskEnqueued(taskID string) string {
	return fmt.Sprintf("events.task.enqueued.%s", taskID)
}

const (
	TopicEventsAll        = "events.>"
	TopicEventsTaskFailed = "events.task.failed.*"
	TopicStreamUsage      = "events.stream.usage"
)
