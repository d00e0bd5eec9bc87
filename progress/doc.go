// Package progress keeps the simulator-wide counters (cpu ticks, dispatches,
// preemptions, evictions, paging traffic) that back the vmstat and utilisation
// reports.
package progress
