// Package schedsim simulates an operating system process scheduler coupled to
// a memory manager.
//
// A fixed pool of cores is shared by processes that must first be granted
// memory frames (flat contiguous or paged allocation) and are then dispatched
// first come first served or round robin. End-users interact with the
// simulator through the Service facade exposed by the root package:
//
//	config, _ := schedsim.LoadConfig(ctx, "config.txt")
//	srv, _ := schedsim.New(config)
//	srv.Start(ctx)
//	rt := srv.Runtime()
//	_, _ = rt.Submit(ctx, "p1")
//	status, _ := rt.Status(ctx, "p1")
//
// Sub-packages hold the building blocks: service/memory (frame table),
// service/scheduler (dispatch loop), model/process (descriptor and execution
// engine) and service/report (operator facing text).
package schedsim
