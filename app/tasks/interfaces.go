package tasks

// TaskSchedulerInterface is the background queue used by the API for asynchronous fetches.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	GetTaskStatus(id string) (TaskStatus, bool)
}
