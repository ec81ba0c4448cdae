package crange

// Test hooks (kept separate so instrumentation doesn't clutter logic).
var (
	lockAfterTraverseHook  func(pred *Range)
	replaceBeforeSwingHook func()
)
