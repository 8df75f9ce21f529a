package pipeline

// State is a step of the controller's state machine.
type State string

const (
	StateInit            State = "INIT"
	StatePreprocess      State = "PREPROCESS"
	StateRecognize       State = "RECOGNIZE"
	StateDegradeAndRetry State = "DEGRADE_AND_RETRY"
	StateExtract         State = "EXTRACT"
	StateValidate        State = "VALIDATE"
	StateScore           State = "SCORE"
	StateDone            State = "DONE"
)
