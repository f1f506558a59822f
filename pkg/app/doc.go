// Package app defines the presenter contract the test harness drives:
// requests naming a presenter and action, the three outcome variants a
// presenter can produce (text, redirect, JSON), the per-presenter user
// session and the factory that creates presenters by name.
//
// Two presenter implementations are provided. ActionPresenter dispatches to
// plain functions keyed by action name. HandlerPresenter drives any
// http.Handler, typically a chi router, in-process and classifies the
// recorded HTTP response into an outcome.
package app
