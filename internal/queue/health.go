package queue

// Queue health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Health is the derived queue condition: a 0-100 score, its coarse status
// and the raw counts behind it.
type Health struct {
	Score  int    `json:"score"`
	Status string `json:"status"`
	Paused bool   `json:"paused"`
	Counts Counts `json:"counts"`
}

const (
	failureWeight = 70
	pausedPenalty = 20

	healthyMin  = 80
	degradedMin = 50
)

// computeHealth scores the queue: the failure ratio over finished tasks
// costs up to failureWeight points, a paused queue a flat pausedPenalty.
func computeHealth(c Counts, paused bool) Health {
	score := 100
	finished := c.Completed + c.Failed
	if finished > 0 {
		score -= failureWeight * c.Failed / finished
	}
	if paused {
		score -= pausedPenalty
	}
	if score < 0 {
		score = 0
	}

	status := StatusUnhealthy
	switch {
	case score >= healthyMin:
		status = StatusHealthy
	case score >= degradedMin:
		status = StatusDegraded
	}
	return Health{Score: score, Status: status, Paused: paused, Counts: c}
}

// BatchStatus aggregates the member states of one batch.
type BatchStatus struct {
	BatchID   string `json:"batchId"`
	Total     int    `json:"total"`
	Waiting   int    `json:"waiting"`
	Delayed   int    `json:"delayed"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	// Status is running until every member is terminal, then completed,
	// partial or failed depending on the mix.
	Status string `json:"status"`
}

func aggregateBatch(batchID string, tasks []Task) BatchStatus {
	out := BatchStatus{BatchID: batchID, Total: len(tasks)}
	for _, t := range tasks {
		switch t.State {
		case StateWaiting:
			out.Waiting++
		case StateDelayed:
			out.Delayed++
		case StateActive:
			out.Active++
		case StateCompleted:
			out.Completed++
		case StateFailed:
			out.Failed++
		}
	}
	switch {
	case out.Total == 0:
		out.Status = "empty"
	case out.Completed+out.Failed < out.Total:
		out.Status = "running"
	case out.Failed == 0:
		out.Status = "completed"
	case out.Completed == 0:
		out.Status = "failed"
	default:
		out.Status = "partial"
	}
	return out
}
