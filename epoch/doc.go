// Package epoch implements epoch-based deferred reclamation for structures that
// are traversed without locks.
//
// A reader brackets every lock-free traversal with a Guard:
//
//	g := d.Enter()
//	defer g.Exit()
//
// Writers that unlink an object hand it to Retire instead of reusing it. The
// object's Reclaim method runs only after every guard that was entered before
// the Retire call has exited, so a reader never observes an object that has
// been recycled underneath it.
//
// The global epoch advances only when every active guard has observed the
// current epoch. An object retired at epoch e is reclaimed once the global
// epoch reaches e+2.
package epoch
