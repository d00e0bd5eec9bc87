package memory

// View is a read-only window on a Manager. Owners that install eviction
// callbacks hand out a View so that only they allocate and free.
type View struct {
	manager *Manager
}

// View returns a read-only view of m
func (m *Manager) View() View {
	return View{manager: m}
}

// Config returns the manager configuration
func (v View) Config() Config { return v.manager.Config() }

// Fits reports whether size could ever be placed
func (v View) Fits(size uint64) bool { return v.manager.Fits(size) }

// IsResident reports whether processID holds frames
func (v View) IsResident(processID int) bool { return v.manager.IsResident(processID) }

// ResidentProcessCount returns the number of processes holding frames
func (v View) ResidentProcessCount() int { return v.manager.ResidentProcessCount() }

// UsedMemory returns the used bytes
func (v View) UsedMemory() uint64 { return v.manager.UsedMemory() }

// Fragmentation returns the external fragmentation in bytes
func (v View) Fragmentation() uint64 { return v.manager.Fragmentation() }

// FramesOf returns the frames held by processID
func (v View) FramesOf(processID int) []int { return v.manager.FramesOf(processID) }

// Layout returns the occupied regions in address order
func (v View) Layout() []Region { return v.manager.Layout() }

// Summary returns memory totals
func (v View) Summary() Summary { return v.manager.Summary() }

// Stats returns the paging counters
func (v View) Stats() Stats { return v.manager.Stats() }
