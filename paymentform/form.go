package paymentform

import (
	"errors"
	"fmt"
	"time"
)

// State is the position of one field in its validation state machine.
type State int

const (
	Pristine State = iota
	Valid
	Invalid
)

func (s State) String() string {
	switch s {
	case Pristine:
		return "pristine"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FieldState is a field's state plus, when Invalid, the reason.
type FieldState struct {
	State  State
	Reason ErrorKind
}

// Messages renders the user-facing text for a failed field.
type Messages interface {
	Message(f Field, k ErrorKind) string
}

// MessagesFunc adapts a function to Messages.
type MessagesFunc func(f Field, k ErrorKind) string

func (fn MessagesFunc) Message(f Field, k ErrorKind) string { return fn(f, k) }

var defaultMessages = MessagesFunc(func(f Field, k ErrorKind) string {
	return (&FieldError{Field: f, Kind: k}).Error()
})

// Inputs are the four handles a Form owns.
type Inputs struct {
	CardNumber Input
	CardName   Input
	Expiry     Input
	CVV        Input
}

type Option func(*Form)

// WithClock sets the clock used by the expiry check.
func WithClock(now func() time.Time) Option {
	return func(f *Form) { f.now = now }
}

func WithMessages(m Messages) Option {
	return func(f *Form) { f.messages = m }
}

// WithMethod sets the method selected when the form is built or reset.
func WithMethod(m Method) Option {
	return func(f *Form) { f.initial = m }
}

// Form keeps the card fields formatted while typing, validates them on blur
// and decides whether a submit may proceed.
type Form struct {
	inputs   [4]Input
	states   [4]FieldState
	initial  Method
	method   Method
	messages Messages
	now      func() time.Time
}

var ErrMissingInput = errors.New("payment form input is nil")

func New(in Inputs, opts ...Option) (*Form, error) {
	f := &Form{
		inputs:   [4]Input{in.CardNumber, in.CardName, in.Expiry, in.CVV},
		initial:  MethodCard,
		messages: defaultMessages,
		now:      time.Now,
	}
	for i, input := range f.inputs {
		if input == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, Field(i))
		}
	}
	for _, opt := range opts {
		opt(f)
	}
	f.method = f.initial
	return f, nil
}

func (f *Form) Method() Method { return f.method }

func (f *Form) State(field Field) FieldState {
	if !field.valid() {
		return FieldState{}
	}
	return f.states[field]
}

// Input reformats the field after the user typed into it.
func (f *Form) Input(field Field) {
	if !field.valid() {
		return
	}
	in := f.inputs[field]
	in.SetValue(Format(field, in.Value()))
}

// Blur validates the field that lost focus and updates its indicator.
func (f *Form) Blur(field Field) error {
	if !field.valid() {
		return ErrUnknownField
	}
	err := Validate(field, f.inputs[field].Value(), f.now())
	f.apply(field, err)
	return err
}

func (f *Form) apply(field Field, err error) {
	in := f.inputs[field]
	if kind, ok := KindOf(err); ok {
		f.states[field] = FieldState{State: Invalid, Reason: kind}
		in.ShowError(f.messages.Message(field, kind))
		return
	}
	f.states[field] = FieldState{State: Valid}
	in.ClearError()
}

// SelectMethod switches the payment method. Leaving card clears every
// indicator without validating anything.
func (f *Form) SelectMethod(m Method) {
	f.method = m
	if m.IsCard() {
		return
	}
	for _, field := range Fields {
		f.clear(field)
	}
}

func (f *Form) clear(field Field) {
	f.states[field] = FieldState{}
	f.inputs[field].ClearError()
}

// Reset empties every field and returns the form to its initial method.
func (f *Form) Reset() {
	for _, field := range Fields {
		f.inputs[field].SetValue("")
		f.clear(field)
	}
	f.method = f.initial
}

// ValidateAll runs all four validators and reports whether every one passed.
func (f *Form) ValidateAll() bool {
	ok := true
	for _, field := range Fields {
		if f.Blur(field) != nil {
			ok = false
		}
	}
	return ok
}

// FirstInvalid returns the first field, in page order, currently Invalid.
func (f *Form) FirstInvalid() (Field, bool) {
	for _, field := range Fields {
		if f.states[field].State == Invalid {
			return field, true
		}
	}
	return 0, false
}

// SubmitResult tells the caller whether the native submission may go on.
type SubmitResult struct {
	Allowed bool
	// Focus is the field that received focus when the submit was blocked.
	Focus  Field
	Errors []*FieldError
}

// Submit performs the aggregate validation. Methods other than card always pass.
func (f *Form) Submit() SubmitResult {
	if !f.method.IsCard() || f.ValidateAll() {
		return SubmitResult{Allowed: true}
	}

	res := SubmitResult{}
	for _, field := range Fields {
		if st := f.states[field]; st.State == Invalid {
			res.Errors = append(res.Errors, &FieldError{Field: field, Kind: st.Reason})
		}
	}
	if first, ok := f.FirstInvalid(); ok {
		res.Focus = first
		f.inputs[first].Focus()
	}
	return res
}

// Snapshot is the part of a Form that outlives a single request.
type Snapshot struct {
	Method Method
	States []FieldState
}

func (f *Form) Snapshot() Snapshot {
	states := make([]FieldState, len(f.states))
	copy(states, f.states[:])
	return Snapshot{Method: f.method, States: states}
}

// Restore loads a snapshot and re-renders the indicators of invalid fields.
func (f *Form) Restore(s Snapshot) error {
	if len(s.States) != 0 && len(s.States) != len(f.states) {
		return fmt.Errorf("snapshot has %d field states, want %d", len(s.States), len(f.states))
	}
	if s.Method != "" {
		f.method = s.Method
	}
	for i, st := range s.States {
		field := Field(i)
		f.states[field] = st
		if st.State == Invalid {
			f.inputs[field].ShowError(f.messages.Message(field, st.Reason))
		} else {
			f.inputs[field].ClearError()
		}
	}
	return nil
}
