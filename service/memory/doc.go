// Package memory owns the frame table of the simulator. It places a process
// footprint either contiguously (flat, first-fit) or on any free frames
// (paging), evicts the resident process touched longest ago when nothing fits,
// and reports occupancy, fragmentation and the address layout used by
// snapshots.
package memory
