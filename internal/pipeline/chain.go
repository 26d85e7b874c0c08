package pipeline

import "slidecast/internal/store"

// StageDescriptor defines one pipeline stage's position in the processing
// chain. The chain is data, not control flow, so the stage order can be
// inspected and tested without executing anything.
type StageDescriptor struct {
	// Type is the job type the stage consumes.
	Type store.JobType
	// Successor is the job type auto-chained after success in one-shot
	// mode. Empty means terminal.
	Successor store.JobType
	// ForwardsSubset controls whether an explicit slide selection is
	// passed along to the successor job. Assembly always works over every
	// ready slide, so rendering does not forward its subset.
	ForwardsSubset bool
	// ResolvesSlides controls whether the runner loads the slide scope
	// before execution. Ingestion creates the slides and assembly selects
	// its own inputs, so both opt out.
	ResolvesSlides bool
}

// chain lists the stages in pipeline order.
var chain = []StageDescriptor{
	{Type: store.JobIngest, Successor: store.JobGenerateScripts},
	{Type: store.JobGenerateScripts, Successor: store.JobGenerateAudio, ForwardsSubset: true, ResolvesSlides: true},
	{Type: store.JobGenerateAudio, Successor: store.JobGenerateVideo, ForwardsSubset: true, ResolvesSlides: true},
	{Type: store.JobGenerateVideo, Successor: store.JobAssembleFinal, ResolvesSlides: true},
	{Type: store.JobAssembleFinal},
}

// Describe returns the descriptor for a job type.
func Describe(jobType store.JobType) (StageDescriptor, bool) {
	for _, descriptor := range chain {
		if descriptor.Type == jobType {
			return descriptor, true
		}
	}
	return StageDescriptor{}, false
}

// Stages returns the pipeline in processing order.
func Stages() []StageDescriptor {
	out := make([]StageDescriptor, len(chain))
	copy(out, chain)
	return out
}
