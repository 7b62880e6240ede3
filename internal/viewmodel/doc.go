// Package viewmodel holds the state behind the device configuration screen
// and the three actions a user can trigger from it.
//
// A ViewModel performs requests; it never touches state. Each action
// returns an Outcome, and the caller folds it into its State with
// State.Apply, which is the only way the state changes:
//
//	vm := viewmodel.New(client, nil)
//	state := viewmodel.State{}.WithFields(fields)
//
//	state = state.Begin(viewmodel.ActionScan)
//	state = state.Apply(vm.Scan(ctx))
//
// Every action sends exactly one request and is never retried. A second
// call of an action that is still running returns ErrInFlight without
// sending anything.
package viewmodel
