package queue

import "time"

// Sync kinds carried in SyncJob.
const (
	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"
)

// AI task types carried in AITask.
const (
	TaskSummarize  = "summarize"
	TaskClassify   = "classify"
	TaskDraftReply = "draft_reply"
	TaskLearnTone  = "learn_tone"
)

// SyncJob is the payload on the sync topic.
type SyncJob struct {
	UserID       string     `json:"userId"`
	Provider     string     `json:"provider"`
	SyncType     string     `json:"syncType"`
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`
}

// AITask is the payload on the AI topic. EmailID is empty for learn_tone.
type AITask struct {
	EmailID  string `json:"emailId,omitempty"`
	UserID   string `json:"userId"`
	TaskType string `json:"taskType"`
}
