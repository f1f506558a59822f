package app

import (
	"context"
	"fmt"
)

// ActionFunc handles one action of an ActionPresenter.
type ActionFunc func(ctx context.Context, req *Request, user *User) (Response, error)

// ActionPresenter dispatches requests to functions keyed by canonical
// action name.
type ActionPresenter struct {
	Base

	name    string
	actions map[string]ActionFunc
}

var _ Presenter = (*ActionPresenter)(nil)

// NewActionPresenter creates an ActionPresenter named name.
func NewActionPresenter(name string, actions map[string]ActionFunc) *ActionPresenter {
	p := &ActionPresenter{name: name, actions: make(map[string]ActionFunc, len(actions))}
	for action, fn := range actions {
		p.actions[CanonicalAction(action)] = fn
	}
	return p
}

// Handle adds or replaces an action.
func (p *ActionPresenter) Handle(action string, fn ActionFunc) {
	p.actions[CanonicalAction(action)] = fn
}

// Run implements Presenter.
func (p *ActionPresenter) Run(ctx context.Context, req *Request) (Response, error) {
	if redirect := p.canonicalRedirect(p.name, req); redirect != nil {
		return redirect, nil
	}

	action := CanonicalAction(req.Action())
	fn, ok := p.actions[action]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", ErrActionNotFound, p.name, action)
	}
	if id := p.User().Identity(); id != nil {
		ctx = WithIdentity(ctx, id)
	}
	return fn(ctx, req, p.User())
}
