package harness

// Trace event type constants.
const (
	EventWeave    = "weave"
	EventCall     = "call"
	EventAdvice   = "advice"
	EventResult   = "result"
	EventUnweave  = "unweave"
	EventTTLFired = "ttl_fired"
)

// TraceEvent is one entry in a scenario's execution trace.
// Every event carries a sequence number from the deterministic clock,
// so an unchanged scenario replays to a byte-identical trace.
type TraceEvent struct {
	Type    string `json:"type"`
	Target  string `json:"target,omitempty"`
	Advice  string `json:"advice,omitempty"`
	Args    []int  `json:"args,omitempty"`
	Results []int  `json:"results,omitempty"`
	Error   string `json:"error,omitempty"`
	Matched int    `json:"matched,omitempty"`
	Seq     int64  `json:"seq"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions held.
	Pass bool `json:"pass"`

	// Trace contains all weave, call, advice, and result events in order.
	// Used for trace assertions and golden comparison.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddWeaveTrace records a weave step and how many joinpoints it matched.
func (r *Result) AddWeaveTrace(target string, matched int, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventWeave,
		Target:  target,
		Matched: matched,
		Seq:     seq,
	})
}

// AddCallTrace records a call step before the target is invoked.
func (r *Result) AddCallTrace(target string, args []int, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventCall,
		Target: target,
		Args:   args,
		Seq:    seq,
	})
}

// AddAdviceTrace records an advice handler entry with the arguments it saw.
func (r *Result) AddAdviceTrace(advice string, args []int, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventAdvice,
		Advice: advice,
		Args:   args,
		Seq:    seq,
	})
}

// AddResultTrace records the outcome of a call step.
func (r *Result) AddResultTrace(results []int, errMsg string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventResult,
		Results: results,
		Error:   errMsg,
		Seq:     seq,
	})
}

// AddUnweaveTrace records an unweave step.
func (r *Result) AddUnweaveTrace(target string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventUnweave,
		Target: target,
		Seq:    seq,
	})
}

// AddTTLFiredTrace records that an awaited expiry timer fired.
func (r *Result) AddTTLFiredTrace(seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type: EventTTLFired,
		Seq:  seq,
	})
}
