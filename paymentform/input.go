package paymentform

// Input is the handle to one rendered field owned by a Form.
type Input interface {
	Value() string
	SetValue(v string)
	// ShowError replaces any indicator already shown for the field and marks it invalid.
	ShowError(message string)
	// ClearError removes the indicator and the invalid marker.
	ClearError()
	// Focus scrolls the field into view and gives it input focus.
	Focus()
}

// TextInput is an in-memory Input. It records what a browser would render.
type TextInput struct {
	value   string
	message string
	invalid bool
	focused bool
}

func NewTextInput(value string) *TextInput {
	return &TextInput{value: value}
}

func (t *TextInput) Value() string { return t.value }

func (t *TextInput) SetValue(v string) { t.value = v }

func (t *TextInput) ShowError(message string) {
	t.message = message
	t.invalid = true
}

func (t *TextInput) ClearError() {
	t.message = ""
	t.invalid = false
}

func (t *TextInput) Focus() { t.focused = true }

// Message is the indicator text currently shown, empty when none.
func (t *TextInput) Message() string { return t.message }

func (t *TextInput) Invalid() bool { return t.invalid }

func (t *TextInput) Focused() bool { return t.focused }
