package ports

import (
	"context"
	"time"
)

// Activity records that an agent was seen using its session.
type Activity struct {
	AccountID string
	AgentID   string
	At        time.Time
}

// ActivitySink accepts activity without blocking the caller on storage.
type ActivitySink interface {
	Enqueue(activity Activity)
}

// ActivityRecorder applies activity to storage.
type ActivityRecorder interface {
	Record(ctx context.Context, activity Activity) error
}
