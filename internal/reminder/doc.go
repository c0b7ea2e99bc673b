// Package reminder is the scheduling and delivery-state core.
//
// A run reads tracked items, asks the Engine which reminder thresholds are
// due today, hands the sorted list to the Dispatcher and lets the Recorder
// append a tag to each item's reminder-state token after a successful send.
// The token is the only durable guard against duplicate sends: a threshold
// present in the token is never emitted again.
//
// Everything that talks to the outside world (record source, notifier,
// message rendering, audit log) is an interface declared in this package.
package reminder
