package methods

import "github.com/haasonsaas/reformbench/pkg/models"

// singleRound is the Session shape shared by every method that issues one
// batch of independent prompts: emit the batch, record the responses,
// assemble.
type singleRound struct {
	requests  []models.PromptRequest
	responses []string
	emitted   bool
	assemble  func(responses []string) (string, map[string]any, error)
}

func (s *singleRound) NextRound(prev []string) ([]models.PromptRequest, error) {
	if s.emitted {
		s.responses = prev
		return nil, nil
	}
	s.emitted = true
	return s.requests, nil
}

func (s *singleRound) Assemble() (string, map[string]any, error) {
	return s.assemble(s.responses)
}

// repeated builds n copies of the same request, one per independent call.
func repeated(req models.PromptRequest, n int) []models.PromptRequest {
	if n < 1 {
		n = 1
	}
	requests := make([]models.PromptRequest, n)
	for i := range requests {
		requests[i] = req
	}
	return requests
}
