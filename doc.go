// Package accounts manages client accounts for a manager-approved banking
// style service.
//
// Lifecycle:
//   - Clients register anonymously and start in the creating status. A
//     manager activates them, which assigns a random numeric login PIN.
//   - An activated client can request closure of its own account, moving it
//     to closing. A manager confirms and the account becomes closed, which is
//     terminal.
//   - AccountStateMachine owns the transition graph, the status dependent
//     columns (is_active, pin, status_changed) and the optimistic version
//     check on every write.
//
// Access:
//   - Every administrative operation takes a Principal. Manager capability
//     is checked before any lookup so unauthorized callers learn nothing
//     about which accounts exist. Manager accounts are invisible to the
//     administrative surface.
//
// Activity sinks:
//   - ActivitySink receives registration, status change and login events.
//     The email Notifier and the AMQP publisher both subscribe through it.
//     Sinks run best effort, failures are logged and never undo the
//     operation that produced the event.
package accounts
