package config

type WorkerKeyStruct struct {
	PersistMalpracticeQueue string
	ExamOutcomesQueue       string
	MalpracticeEventsQueue  string
}

var WorkerKey = &WorkerKeyStruct{
	PersistMalpracticeQueue: "persist_malpractice_queue",
	ExamOutcomesQueue:       "exam_outcomes",
	MalpracticeEventsQueue:  "malpractice_events",
}
