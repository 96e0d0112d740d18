package forge

// Reporter receives progress events from Generate in the order they happen.
type Reporter interface {
	Signature(signature string)
	Code(code string)
	Tests(tests []TestCase)
	RunningCode()
	// Output carries whatever a run printed to stdout.
	Output(stage, stdout string)
	CodeFailed(message string)
	RunningTests()
	TestFailed(name, message string)
	Regenerating()
	Fixed(code string)
	Passed()
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) Signature(string)          {}
func (NopReporter) Code(string)               {}
func (NopReporter) Tests([]TestCase)          {}
func (NopReporter) RunningCode()              {}
func (NopReporter) Output(string, string)     {}
func (NopReporter) CodeFailed(string)         {}
func (NopReporter) RunningTests()             {}
func (NopReporter) TestFailed(string, string) {}
func (NopReporter) Regenerating()             {}
func (NopReporter) Fixed(string)              {}
func (NopReporter) Passed()                   {}
