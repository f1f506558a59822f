// Package container provides a small service registry used to wire an
// application for integration tests.
//
// Services live in named slots. Each slot records the type it was declared
// with, so tests can look services up by interface and substitute doubles
// without losing the declared type. Slots are either filled with an instance
// up front or with a factory that runs on first resolution, which lets a test
// swap a dependency before anything that needs it is built.
package container
