package mal

// Trace records one top-level evaluation handled by a Session: the source it
// was given, and either the final value or the error that stopped it.
type Trace struct {
	Input     string // source text as submitted
	Result    Value  // final value; zero when Error is set
	Error     string // non-empty on error
	Timestamp string // ISO 8601
}

// ToValue converts a Trace to a property list for the traces native:
// (:input "..." :result v :error nil :timestamp "...").
func (t *Trace) ToValue() Value {
	result := t.Result
	errVal := NilVal()
	if t.Error != "" {
		result = NilVal()
		errVal = StringVal(t.Error)
	}
	return ListVal([]Value{
		KeywordVal("input"), StringVal(t.Input),
		KeywordVal("result"), result,
		KeywordVal("error"), errVal,
		KeywordVal("timestamp"), StringVal(t.Timestamp),
	})
}
