package tasks

const (
	TaskTypePublishQueue = "publish:queue"
	TaskTypePublishItem  = "publish:item"
)

type PublishQueuePayload struct {
	QueueID int64 `json:"queue_id"`
}

type PublishItemPayload struct {
	ItemID   int64  `json:"item_id"`
	Platform string `json:"platform"`
	All      bool   `json:"all"`
}
