package usecase

// BuildSystemPrompt is exported for testing
var BuildSystemPrompt = (*QueryUseCase).buildSystemPrompt

// BuildSearchPrompt is exported for testing
var BuildSearchPrompt = (*QueryUseCase).buildSearchPrompt

// LiveStreams returns the number of sessions with a live stream
func (uc *QueryUseCase) LiveStreams() int {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return len(uc.live)
}
