package storefront

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownAction = errors.New("unknown address action")

// AddressRequest is what an address row action carries. Token is the
// shopper's bearer token; empty calls the storefront anonymously.
type AddressRequest struct {
	ID      int
	Token   string
	Address Address
}

type AddressAction func(ctx context.Context, req AddressRequest) (*AddressResult, error)

// AddressActions dispatches address row actions by name. The set is fixed at
// construction.
type AddressActions struct {
	actions map[string]AddressAction
}

// NewAddressActions registers edit, delete and cancel against c. The set is
// safe to share between requests; each call authenticates with req.Token.
func NewAddressActions(c *Client) *AddressActions {
	return &AddressActions{actions: map[string]AddressAction{
		"edit": func(ctx context.Context, req AddressRequest) (*AddressResult, error) {
			return c.WithToken(req.Token).EditAddress(ctx, req.ID, req.Address)
		},
		"delete": func(ctx context.Context, req AddressRequest) (*AddressResult, error) {
			return c.WithToken(req.Token).DeleteAddress(ctx, req.ID)
		},
		// cancel discards the pending edit without calling the storefront
		"cancel": func(context.Context, AddressRequest) (*AddressResult, error) {
			return &AddressResult{Success: true}, nil
		},
	}}
}

func (a *AddressActions) Dispatch(ctx context.Context, name string, req AddressRequest) (*AddressResult, error) {
	action, ok := a.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return action(ctx, req)
}

// Names lists the registered actions, sorted.
func (a *AddressActions) Names() []string {
	names := make([]string, 0, len(a.actions))
	for name := range a.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
