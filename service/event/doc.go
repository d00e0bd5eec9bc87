// Package event carries scheduler lifecycle notifications (submission,
// admission, dispatch, preemption, eviction, termination) over a messaging
// queue to asynchronous listeners.
package event
